package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scriptvideo/internal/engine"
	"github.com/ivlev/scriptvideo/internal/logging"
	"github.com/ivlev/scriptvideo/internal/script"
	"github.com/ivlev/scriptvideo/internal/service"
	"github.com/ivlev/scriptvideo/internal/video"
)

type fakeService struct {
	mu       sync.Mutex
	requests []service.Request
	folders  []service.FolderRequest
	events   chan service.Event
	unsubbed bool
}

func newFakeService() *fakeService {
	return &fakeService{events: make(chan service.Event, 8)}
}

func (f *fakeService) CreateVideo(_ context.Context, req service.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(req.Images) == 0 {
		return "", video.ErrNoRenderableScenes
	}
	f.requests = append(f.requests, req)
	return fmt.Sprintf("job-%d", len(f.requests)), nil
}

func (f *fakeService) CreateFromFolder(_ context.Context, req service.FolderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders = append(f.folders, req)
	return "folder-job", nil
}

func (f *fakeService) Cancel(id string) error {
	if id != "job-1" {
		return fmt.Errorf("%w: %s", service.ErrUnknownJob, id)
	}
	return nil
}

func (f *fakeService) Subscribe() (int, <-chan service.Event) { return 7, f.events }

func (f *fakeService) Unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == 7 && !f.unsubbed {
		f.unsubbed = true
		close(f.events)
	}
}

func runServer(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Port: -1})
	require.NoError(t, err)
	ns.Start()
	if !ns.ReadyForConnections(4 * time.Second) {
		t.Fatal("NATS server did not start")
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

func setup(t *testing.T) (*nats.Conn, *fakeService, *Bridge) {
	t.Helper()
	url := runServer(t)

	nc, err := Connect(url, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	svc := newFakeService()
	b := New(nc, svc, "test", logging.NewNop())
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)

	client, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, svc, b
}

func request(t *testing.T, nc *nats.Conn, subject string, payload any) Reply {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	msg, err := nc.Request(subject, data, 5*time.Second)
	require.NoError(t, err)
	var reply Reply
	require.NoError(t, json.Unmarshal(msg.Data, &reply))
	return reply
}

func TestCreateParsesScript(t *testing.T) {
	client, svc, _ := setup(t)

	reply := request(t, client, "test.create", CreateMessage{
		Images:    []string{"/img/1.png"},
		Script:    "TAMBAH TEKS DIATAS Hello world\n",
		AudioPath: "/a.mp3",
	})
	require.Empty(t, reply.Error)
	assert.Equal(t, "job-1", reply.JobID)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.requests, 1)
	assert.Equal(t, []script.Instruction{{
		SceneNumber: 1,
		Text:        "Hello world",
		Effects:     []script.Effect{{Kind: script.TypingText}},
	}}, svc.requests[0].Instructions)
}

func TestCreateFolder(t *testing.T) {
	client, svc, _ := setup(t)

	reply := request(t, client, "test.create", CreateMessage{ImageDir: "/imgs", Scripts: []string{"a.txt"}, AudioPath: "/a.mp3"})
	assert.Equal(t, Reply{JobID: "folder-job"}, reply)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.folders, 1)
	assert.Equal(t, "/imgs", svc.folders[0].ImageDir)
}

func TestCreateErrors(t *testing.T) {
	client, _, _ := setup(t)

	reply := request(t, client, "test.create", CreateMessage{AudioPath: "/a.mp3"})
	assert.Empty(t, reply.JobID)
	assert.Contains(t, reply.Error, "no scene")

	msg, err := client.Request("test.create", []byte("{not json"), 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Data), "decode create request")
}

func TestCancel(t *testing.T) {
	client, _, _ := setup(t)

	assert.Equal(t, Reply{JobID: "job-1"}, request(t, client, "test.cancel", CancelMessage{JobID: "job-1"}))
	reply := request(t, client, "test.cancel", CancelMessage{JobID: "other"})
	assert.Contains(t, reply.Error, "unknown job")
}

func TestEventsArePublished(t *testing.T) {
	client, svc, b := setup(t)

	sub, err := client.SubscribeSync("test.progress.*")
	require.NoError(t, err)
	require.NoError(t, client.Flush())

	svc.events <- service.Event{JobID: "job-1", Progress: &engine.ProgressEvent{Percent: 50, Timestamp: "00:00:05.000"}}
	svc.events <- service.Event{JobID: "job-1", Result: &engine.Result{JobID: "job-1", State: engine.Completed, OutputPath: "/out.mp4"}}

	first, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, b.ProgressSubject("job-1"), first.Subject)
	assert.JSONEq(t, `{"job_id":"job-1","progress":{"percent":50,"timestamp":"00:00:05.000"}}`, string(first.Data))

	second, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(second.Data, &decoded))
	result := decoded["result"].(map[string]any)
	assert.Equal(t, "completed", result["state"])
	assert.Equal(t, "/out.mp4", result["output_path"])
}

func TestStartTwice(t *testing.T) {
	_, _, b := setup(t)
	assert.Error(t, b.Start(context.Background()))
}
