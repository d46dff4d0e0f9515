package eventbus

import (
	"testing"
	"time"

	"github.com/dbwatch/dbwatch/internal/model"
)

func TestBus_PipeDeliversInOrder(t *testing.T) {
	b := New(nil)
	src := make(chan model.ChangeEvent, 3)
	src <- model.ChangeEvent{ID: "1", Kind: model.ChangeInsert}
	src <- model.ChangeEvent{ID: "2", Kind: model.ChangeUpdate}
	src <- model.ChangeEvent{ID: "3", Kind: model.ChangeDelete}
	close(src)

	done := make(chan struct{})
	go func() {
		b.Pipe(src)
		close(done)
	}()
	<-done

	for _, want := range []string{"1", "2", "3"} {
		select {
		case ev := <-b.Events():
			if ev.ID != want {
				t.Fatalf("expected event %s, got %s", want, ev.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %s", want)
		}
	}
}

func TestBus_PublishAfterCloseDoesNotPanic(t *testing.T) {
	b := New(nil)
	b.Close()

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Publish after Close must not panic, got: %v", r)
		}
	}()
	b.Publish(model.ChangeEvent{ID: "late"})
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	b := New(nil)
	b.Close()
	b.Close() // must not panic on double close
}
