package control_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/lunasched/lunasched/internal/clock"
	"github.com/lunasched/lunasched/internal/control"
	"github.com/lunasched/lunasched/internal/dispatch"
	"github.com/lunasched/lunasched/internal/domain"
	"github.com/lunasched/lunasched/internal/ledger"
	"github.com/lunasched/lunasched/internal/notify"
	"github.com/lunasched/lunasched/internal/registry"
	"github.com/lunasched/lunasched/internal/repository/memory"
	"github.com/lunasched/lunasched/internal/spawner"
	"github.com/lunasched/lunasched/internal/usecase"
)

func testServer(t *testing.T) (*control.Server, string) {
	t.Helper()

	jobs := memory.NewJobStore()
	execs := memory.NewExecutionStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(0)
	sp := spawner.New(logger)
	notifier := notify.New(map[string]notify.Target{"log": notify.NewLogTarget(logger)}, logger)
	hooks := notify.NewHookRunner(sp, logger)
	clk := clock.Real{}

	d := dispatch.NewDispatcher(execs, reg, sp, notifier, hooks, clk, logger, 16, 2)
	sched := dispatch.NewScheduler(jobs, execs, ledger.New(ledger.NewInMemoryStore()), reg, d, notifier, clk, logger, 0, 0)
	svc := usecase.NewService(jobs, execs, sched)

	socketPath := filepath.Join(t.TempDir(), "control.sock")
	srv := control.NewServer(socketPath, nil, svc, logger)
	return srv, socketPath
}

func runServer(t *testing.T, srv *control.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = srv.Run(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
}

func call(t *testing.T, socketPath string, req control.Request) control.Response {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		t.Fatalf("write length: %v", err)
	}
	if _, err := conn.Write(body); err != nil {
		t.Fatalf("write body: %v", err)
	}

	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		t.Fatalf("read length: %v", err)
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	respBody := make([]byte, size)
	if _, err := io.ReadFull(conn, respBody); err != nil {
		t.Fatalf("read body: %v", err)
	}

	var resp control.Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestAddJobGetJobRoundTrip(t *testing.T) {
	srv, socketPath := testServer(t)
	runServer(t, srv)

	job := domain.Job{
		Name:     "nightly-backup",
		Command:  "/usr/local/bin/backup.sh",
		Schedule: "every 1h",
		Timezone: "UTC",
		Enabled:  true,
	}
	payload, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}

	addResp := call(t, socketPath, control.Request{Op: "AddJob", Payload: payload})
	if !addResp.OK {
		t.Fatalf("AddJob failed: %+v", addResp.Error)
	}

	getPayload, _ := json.Marshal(map[string]string{"name": "nightly-backup"})
	getResp := call(t, socketPath, control.Request{Op: "GetJob", Payload: getPayload})
	if !getResp.OK {
		t.Fatalf("GetJob failed: %+v", getResp.Error)
	}

	var got domain.Job
	if err := json.Unmarshal(getResp.Result, &got); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}
	if got.Name != "nightly-backup" {
		t.Fatalf("name = %q", got.Name)
	}
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	srv, socketPath := testServer(t)
	runServer(t, srv)

	job := domain.Job{
		Name:     "broken-job",
		Command:  "/bin/true",
		Schedule: "not a schedule",
		Timezone: "UTC",
	}
	payload, _ := json.Marshal(job)

	resp := call(t, socketPath, control.Request{Op: "AddJob", Payload: payload})
	if resp.OK {
		t.Fatal("expected AddJob to fail for an unparseable schedule")
	}
	if resp.Error.Kind != "invalid_argument" {
		t.Fatalf("error kind = %q, want invalid_argument", resp.Error.Kind)
	}
}

func TestGetJobNotFound(t *testing.T) {
	srv, socketPath := testServer(t)
	runServer(t, srv)

	getPayload, _ := json.Marshal(map[string]string{"name": "does-not-exist"})
	resp := call(t, socketPath, control.Request{Op: "GetJob", Payload: getPayload})
	if resp.OK {
		t.Fatal("expected GetJob to fail for a missing job")
	}
	if resp.Error.Kind != "not_found" {
		t.Fatalf("error kind = %q, want not_found", resp.Error.Kind)
	}
}

func TestUnknownOp(t *testing.T) {
	srv, socketPath := testServer(t)
	runServer(t, srv)

	resp := call(t, socketPath, control.Request{Op: "DoesNotExist"})
	if resp.OK {
		t.Fatal("expected unknown op to fail")
	}
	if resp.Error.Kind != "unknown_op" {
		t.Fatalf("error kind = %q, want unknown_op", resp.Error.Kind)
	}
}

func TestAuthRejectsMissingTokenWhenSecretConfigured(t *testing.T) {
	jobs := memory.NewJobStore()
	execs := memory.NewExecutionStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(0)
	sp := spawner.New(logger)
	notifier := notify.New(map[string]notify.Target{"log": notify.NewLogTarget(logger)}, logger)
	hooks := notify.NewHookRunner(sp, logger)
	clk := clock.Real{}
	d := dispatch.NewDispatcher(execs, reg, sp, notifier, hooks, clk, logger, 16, 2)
	sched := dispatch.NewScheduler(jobs, execs, ledger.New(ledger.NewInMemoryStore()), reg, d, notifier, clk, logger, 0, 0)
	svc := usecase.NewService(jobs, execs, sched)

	socketPath := filepath.Join(t.TempDir(), "control.sock")
	srv := control.NewServer(socketPath, []byte("super-secret"), svc, logger)
	runServer(t, srv)

	resp := call(t, socketPath, control.Request{Op: "ListJobs"})
	if resp.OK {
		t.Fatal("expected ListJobs without a token to fail when a secret is configured")
	}
	if resp.Error.Kind != "unauthorized" {
		t.Fatalf("error kind = %q, want unauthorized", resp.Error.Kind)
	}
}
