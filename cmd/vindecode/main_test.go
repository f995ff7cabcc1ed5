package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/vinwizard/engine/domain"
	"github.com/WessleyAI/vinwizard/engine/lookup"
	"github.com/WessleyAI/vinwizard/engine/view"
)

const payload = `{"Count":4,"Message":"ok","SearchCriteria":"","Results":[
  {"Value":"HONDA","ValueId":"474","Variable":"Make","VariableId":26},
  {"Value":"Accord","ValueId":"1861","Variable":"Model","VariableId":28},
  {"Value":"1998","ValueId":"","Variable":"Model Year","VariableId":29},
  {"Value":"5.7","ValueId":"","Variable":"Displacement (L)","VariableId":13}
]}`

func newUpstream(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_Table(t *testing.T) {
	var calls atomic.Int32
	srv := newUpstream(t, &calls)
	var out, errOut bytes.Buffer

	code := run(context.Background(), []string{"-base", srv.URL, "-history-dir", t.TempDir(), "-vin", "1hgcm82633a004352"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (%s)", code, errOut.String())
	}
	for _, want := range []string{"HONDA Accord", "1998", "5.7 grams", "7.6 grams", "0.6 grams", "$582", "1HGCM82633A004352", view.EstimateTitle, view.EstimateNote} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected output to contain %q:\n%s", want, out.String())
		}
	}
}

func TestRun_JSONAndHistory(t *testing.T) {
	var calls atomic.Int32
	srv := newUpstream(t, &calls)
	dir := t.TempDir()
	var out, errOut bytes.Buffer

	if code := run(context.Background(), []string{"-base", srv.URL, "-history-dir", dir, "-json", "ABC"}, &out, &errOut); code != 0 {
		t.Fatalf("expected exit 0, got %d (%s)", code, errOut.String())
	}
	var res result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.VIN != "ABC" || res.Estimate == nil || res.Estimate.Value != 582 {
		t.Fatalf("unexpected result %+v", res)
	}

	out.Reset()
	if code := run(context.Background(), []string{"-history-dir", dir, "-history", "-json"}, &out, &errOut); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	var list []domain.HistoryEntry
	if err := json.Unmarshal(out.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].VIN != "ABC" || list[0].Year != "1998" {
		t.Fatalf("unexpected history %+v", list)
	}

	out.Reset()
	if code := run(context.Background(), []string{"-base", srv.URL, "-history-dir", dir, "-pick", "1"}, &out, &errOut); code != 0 {
		t.Fatalf("expected exit 0, got %d (%s)", code, errOut.String())
	}
	if calls.Load() != 2 {
		t.Fatalf("expected pick to decode again, got %d calls", calls.Load())
	}
}

func TestRun_NoVIN(t *testing.T) {
	var calls atomic.Int32
	srv := newUpstream(t, &calls)
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"-base", srv.URL, "-history-dir", t.TempDir()}, &out, &errOut); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if calls.Load() != 0 {
		t.Fatal("expected no upstream request")
	}
}

func TestRun_PickOutOfRange(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"-history-dir", t.TempDir(), "-pick", "3"}, &out, &errOut); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}

func TestRun_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	var out, errOut bytes.Buffer
	if code := run(context.Background(), []string{"-base", srv.URL, "-history-dir", t.TempDir(), "-vin", "ABC"}, &out, &errOut); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "Error: ") {
		t.Fatalf("expected error message, got %q", errOut.String())
	}
}

func TestPrintHistory_Empty(t *testing.T) {
	var out bytes.Buffer
	printHistory(&out, nil, false)
	if !strings.Contains(out.String(), "No recent searches.") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

type replaySubscriber struct {
	subject string
	data    [][]byte
}

func (r *replaySubscriber) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	r.subject = subject
	for _, d := range r.data {
		cb(&nats.Msg{Subject: subject, Data: d})
	}
	return nil, nil
}

func TestWatch_PrintsEvents(t *testing.T) {
	sub := &replaySubscriber{data: [][]byte{
		[]byte(`{"vin":"1HGCM82633A004352","make":"HONDA","model":"Accord","year":"2003","decoded_at":"2024-05-01T12:00:00Z"}`),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out, errOut bytes.Buffer
	if code := watch(ctx, sub, &out, &errOut, false); code != 0 {
		t.Fatalf("expected exit 0, got %d (%s)", code, errOut.String())
	}
	if sub.subject != lookup.Subject {
		t.Fatalf("expected subject %q, got %q", lookup.Subject, sub.subject)
	}
	want := "2024-05-01T12:00:00Z  1HGCM82633A004352  2003 HONDA Accord\n"
	if out.String() != want {
		t.Fatalf("expected %q, got %q", want, out.String())
	}
}
