package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"

	"transcription-icd-coder/internal/models"
)

type recordingHandler struct {
	coded  []models.RowCoded
	failed []models.RowFailed
}

func (r *recordingHandler) OnCoded(ev models.RowCoded)   { r.coded = append(r.coded, ev) }
func (r *recordingHandler) OnFailed(ev models.RowFailed) { r.failed = append(r.failed, ev) }

func message(eventType, value string) kafka.Message {
	return kafka.Message{
		Value:   []byte(value),
		Headers: []kafka.Header{{Key: "principal", Value: []byte("svc")}, {Key: "eventType", Value: []byte(eventType)}},
	}
}

func TestDispatch(t *testing.T) {
	h := &recordingHandler{}

	err := Dispatch(message(EventCoded, `{"runId":"r","rowIndex":2,"matchStatus":"matched","row":{"age":45,"medical_specialty":"Surgery","icd_code":"0DTJ0ZZ"}}`), h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = Dispatch(message(EventFailed, `{"runId":"r","rowIndex":3,"stage":"extraction","error":"timeout"}`), h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(h.coded) != 1 || len(h.failed) != 1 {
		t.Fatalf("expected 1 coded and 1 failed event, got %d and %d", len(h.coded), len(h.failed))
	}
	if *h.coded[0].Row.Age != 45 || *h.coded[0].Row.ICDCode != "0DTJ0ZZ" {
		t.Errorf("unexpected coded row: %+v", h.coded[0].Row)
	}
	if h.failed[0].Stage != "extraction" || h.failed[0].RowIndex != 3 {
		t.Errorf("unexpected failed event: %+v", h.failed[0])
	}
}

func TestDispatch_Errors(t *testing.T) {
	tests := []struct {
		name string
		msg  kafka.Message
	}{
		{"no header", kafka.Message{Value: []byte(`{}`)}},
		{"unknown type", message("partial", `{}`)},
		{"bad coded json", message(EventCoded, `{`)},
		{"bad failed json", message(EventFailed, `[1]`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &recordingHandler{}
			if err := Dispatch(tt.msg, h); err == nil {
				t.Error("expected error")
			}
			if len(h.coded)+len(h.failed) != 0 {
				t.Error("handler must not be called")
			}
		})
	}
}

func TestConsumer_OpensEveryPartition(t *testing.T) {
	c := NewConsumer(ConsumerConfig{Brokers: []string{"localhost:9092"}, TopicCoded: "coded", TopicFailed: "failed"})
	c.lookup = func(ctx context.Context, topic string) ([]int, error) {
		if topic == "coded" {
			return []int{0, 1, 2}, nil
		}
		return []int{0}, nil
	}
	defer c.Close()

	readers, err := c.open(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(readers) != 4 {
		t.Fatalf("expected 4 readers, got %d", len(readers))
	}

	var got []string
	for _, r := range readers {
		got = append(got, fmt.Sprintf("%s/%d", r.Config().Topic, r.Config().Partition))
	}
	want := "coded/0 coded/1 coded/2 failed/0"
	if strings.Join(got, " ") != want {
		t.Errorf("readers = %v, want %s", got, want)
	}
}

func TestConsumer_SkipsEmptyTopics(t *testing.T) {
	c := NewConsumer(ConsumerConfig{Brokers: []string{"localhost:9092"}, TopicCoded: "coded"})
	var looked []string
	c.lookup = func(ctx context.Context, topic string) ([]int, error) {
		looked = append(looked, topic)
		return []int{0}, nil
	}
	defer c.Close()

	if _, err := c.open(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(looked) != 1 || looked[0] != "coded" {
		t.Errorf("expected lookup of coded only, got %v", looked)
	}
}

func TestConsumer_RunLookupError(t *testing.T) {
	c := NewConsumer(ConsumerConfig{Brokers: []string{"localhost:9092"}, TopicCoded: "coded", TopicFailed: "failed"})
	c.lookup = func(ctx context.Context, topic string) ([]int, error) {
		if topic == "failed" {
			return nil, errors.New("unknown topic")
		}
		return []int{0, 1}, nil
	}
	defer c.Close()

	err := c.Run(context.Background(), &recordingHandler{})
	if err == nil || !strings.Contains(err.Error(), "unknown topic") {
		t.Fatalf("expected lookup error, got %v", err)
	}
	if len(c.readers) != 0 {
		t.Errorf("expected no open readers, got %d", len(c.readers))
	}
}

func TestBrokerPartitions_NoBrokers(t *testing.T) {
	if _, err := brokerPartitions(nil)(context.Background(), "coded"); err == nil {
		t.Error("expected error without brokers")
	}
}
