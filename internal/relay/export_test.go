package relay

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestExporterFulfill(t *testing.T) {
	e := NewExporter(5 * time.Second)

	announced := make(chan struct{})
	var (
		data []byte
		err  error
		wg   sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		data, err = e.Request(func() { close(announced) })
	}()

	<-announced
	if ferr := e.Fulfill([]byte("png-bytes")); ferr != nil {
		t.Fatalf("fulfill rejected: %v", ferr)
	}
	wg.Wait()

	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("wrong bytes delivered: %q", data)
	}
	if e.Busy() {
		t.Error("slot must return to idle after fulfillment")
	}
}

func TestExporterSingleFlight(t *testing.T) {
	e := NewExporter(5 * time.Second)

	announced := make(chan struct{})
	result := make(chan []byte, 1)
	go func() {
		data, _ := e.Request(func() { close(announced) })
		result <- data
	}()
	<-announced

	// Second request while the first is outstanding: rejected immediately,
	// first request unaffected.
	if _, err := e.Request(nil); !errors.Is(err, ErrExportBusy) {
		t.Fatalf("expected ErrExportBusy, got %v", err)
	}

	if err := e.Fulfill([]byte("first")); err != nil {
		t.Fatalf("fulfill failed: %v", err)
	}
	select {
	case data := <-result:
		if string(data) != "first" {
			t.Errorf("first caller got %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first caller never resolved")
	}
}

func TestExporterTimeout(t *testing.T) {
	e := NewExporter(50 * time.Millisecond)

	start := time.Now()
	_, err := e.Request(nil)
	if !errors.Is(err, ErrExportTimeout) {
		t.Fatalf("expected ErrExportTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned before the window elapsed: %v", elapsed)
	}

	// The slot is idle again: a new request proceeds and can be fulfilled.
	announced := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := e.Request(func() { close(announced) })
		done <- err
	}()
	<-announced
	if err := e.Fulfill([]byte("x")); err != nil {
		t.Fatalf("fulfill after reset failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("request after timeout failed: %v", err)
	}
}

func TestExporterLateFulfill(t *testing.T) {
	t.Run("no request pending", func(t *testing.T) {
		e := NewExporter(time.Second)
		if err := e.Fulfill([]byte("x")); !errors.Is(err, ErrNoPendingExport) {
			t.Errorf("expected ErrNoPendingExport, got %v", err)
		}
	})

	t.Run("after timeout fired", func(t *testing.T) {
		e := NewExporter(20 * time.Millisecond)
		if _, err := e.Request(nil); !errors.Is(err, ErrExportTimeout) {
			t.Fatalf("expected timeout, got %v", err)
		}
		if err := e.Fulfill([]byte("late")); !errors.Is(err, ErrNoPendingExport) {
			t.Errorf("late result must be dropped, got %v", err)
		}
	})
}
