package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scriptvideo/internal/config"
	"github.com/ivlev/scriptvideo/internal/engine"
	"github.com/ivlev/scriptvideo/internal/logging"
	"github.com/ivlev/scriptvideo/internal/script"
	"github.com/ivlev/scriptvideo/internal/source"
	"github.com/ivlev/scriptvideo/internal/video"
)

// TestMain lets the test binary stand in for ffmpeg. The fake reads the concat
// manifest, reports progress and writes the last argument as the output file.
func TestMain(m *testing.M) {
	if os.Getenv("FAKE_FFMPEG") == "1" {
		os.Exit(fakeFFmpeg(os.Args[1:]))
	}
	os.Exit(m.Run())
}

func fakeFFmpeg(args []string) int {
	if len(args) == 0 {
		return 2
	}
	output := args[len(args)-1]
	for i, a := range args {
		if a == "-i" && i+1 < len(args) {
			if _, err := os.Stat(args[i+1]); err != nil {
				fmt.Fprintf(os.Stderr, "%s: No such file or directory\n", args[i+1])
				return 1
			}
		}
	}
	fmt.Println("out_time_us=1750000\nprogress=continue")
	if os.Getenv("FAKE_FFMPEG_MODE") == "hang" {
		time.Sleep(time.Minute)
	}
	if err := os.WriteFile(output, []byte("video"), 0o644); err != nil {
		return 1
	}
	fmt.Println("out_time_us=3500000\nprogress=end")
	return 0
}

type fixture struct {
	dir    string
	images []string
	audio  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{dir: dir, audio: filepath.Join(dir, "voice.mp3")}
	require.NoError(t, os.WriteFile(f.audio, []byte("id3"), 0o644))
	imgDir := filepath.Join(dir, "images")
	require.NoError(t, os.Mkdir(imgDir, 0o755))
	for _, name := range []string{"slide 2.png", "slide 1.png", "slide 10.png"} {
		path := filepath.Join(imgDir, name)
		require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
	}
	images, err := source.ListImages(imgDir)
	require.NoError(t, err)
	f.images = images
	return f
}

func newService(t *testing.T, mode string) *Service {
	t.Helper()
	runner := engine.NewRunner(logging.NewNop())
	runner.SampleInterval = 20 * time.Millisecond
	runner.KillGrace = 2 * time.Second
	svc := New(runner, Options{
		OutputDir:  t.TempDir(),
		FFmpegPath: os.Args[0],
		TempDir:    t.TempDir(),
		Env:        []string{"FAKE_FFMPEG=1", "FAKE_FFMPEG_MODE=" + mode},
	}, logging.NewNop())
	t.Cleanup(svc.Close)
	return svc
}

func nextTerminal(t *testing.T, events <-chan Event) (Event, []Event) {
	t.Helper()
	var progress []Event
	timeout := time.After(30 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed early")
			if ev.Terminal() {
				return ev, progress
			}
			progress = append(progress, ev)
		case <-timeout:
			t.Fatal("no terminal event")
		}
	}
}

func TestCreateVideoPublishesEvents(t *testing.T) {
	f := newFixture(t)
	svc := newService(t, "ok")
	_, events := svc.Subscribe()

	output := filepath.Join(f.dir, "out", "video.mp4")
	h, err := svc.CreateVideo(context.Background(), Request{
		Images:       f.images,
		Instructions: []script.Instruction{{SceneNumber: 1, Text: "hello"}},
		AudioPath:    f.audio,
		OutputPath:   output,
		Settings:     config.DefaultEncodeSettings(),
	})
	require.NoError(t, err)

	terminal, progress := nextTerminal(t, events)
	assert.Equal(t, h.ID, terminal.JobID)
	require.NotNil(t, terminal.Result)
	assert.Equal(t, engine.Completed, terminal.Result.State)
	assert.Equal(t, output, terminal.Result.OutputPath)
	assert.FileExists(t, output)

	require.NotEmpty(t, progress)
	for _, ev := range progress {
		assert.Equal(t, h.ID, ev.JobID)
		require.NotNil(t, ev.Progress)
	}
	// three scenes make 10.5s of video
	assert.InDelta(t, 1750.0/105, progress[0].Progress.Percent, 0.001)

	_, running := svc.Job(h.ID)
	assert.False(t, running, "finished job still registered")
}

func TestCreateVideoValidationIsSynchronous(t *testing.T) {
	f := newFixture(t)
	svc := newService(t, "ok")

	_, err := svc.CreateVideo(context.Background(), Request{
		Instructions: []script.Instruction{{SceneNumber: 1, Text: "only words"}},
		AudioPath:    f.audio,
		Settings:     config.DefaultEncodeSettings(),
	})
	require.ErrorIs(t, err, video.ErrNoRenderableScenes)

	_, err = svc.CreateVideo(context.Background(), Request{
		Images:   f.images,
		Settings: config.DefaultEncodeSettings(),
	})
	require.ErrorIs(t, err, video.ErrAudioMissing)
	assert.Equal(t, engine.Idle, svc.runner.State())
}

func TestCreateVideoBusyDiscardsJob(t *testing.T) {
	f := newFixture(t)
	svc := newService(t, "hang")
	_, events := svc.Subscribe()

	req := Request{Images: f.images, AudioPath: f.audio, Settings: config.DefaultEncodeSettings()}
	req.OutputPath = filepath.Join(f.dir, "a.mp4")
	first, err := svc.CreateVideo(context.Background(), req)
	require.NoError(t, err)

	req.OutputPath = filepath.Join(f.dir, "b.mp4")
	_, err = svc.CreateVideo(context.Background(), req)
	require.ErrorIs(t, err, engine.ErrBusy)

	entries, err := os.ReadDir(svc.opts.TempDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "rejected job left a work directory")

	require.NoError(t, svc.Cancel(first.ID))
	terminal, _ := nextTerminal(t, events)
	assert.Equal(t, engine.Cancelled, terminal.Result.State)
	assert.NoFileExists(t, filepath.Join(f.dir, "a.mp4"))
}

func TestCancelUnknownJob(t *testing.T) {
	svc := newService(t, "ok")
	assert.ErrorIs(t, svc.Cancel("missing"), ErrUnknownJob)
}

func TestCreateFromFolder(t *testing.T) {
	f := newFixture(t)
	svc := newService(t, "ok")
	_, events := svc.Subscribe()

	scriptPath := filepath.Join(f.dir, "script.txt")
	require.NoError(t, os.WriteFile(scriptPath, []byte("TAMBAH TEKS DIATAS Hello\n\nPAKAI FOOTAGE HITAM dark\n"), 0o644))

	h, err := svc.CreateFromFolder(context.Background(), FolderRequest{
		ImageDir:  filepath.Join(f.dir, "images"),
		Scripts:   []string{scriptPath},
		AudioPath: f.audio,
		Settings:  config.DefaultEncodeSettings(),
	})
	require.NoError(t, err)

	terminal, _ := nextTerminal(t, events)
	assert.Equal(t, h.ID, terminal.JobID)
	assert.Equal(t, engine.Completed, terminal.Result.State)
	assert.True(t, strings.HasPrefix(filepath.Base(terminal.Result.OutputPath), "voice_"))
	assert.Equal(t, ".mp4", filepath.Ext(terminal.Result.OutputPath))
}

func TestPlanFromFolder(t *testing.T) {
	f := newFixture(t)
	scriptPath := filepath.Join(f.dir, "script.txt")
	require.NoError(t, os.WriteFile(scriptPath, []byte("one\nPAKAI FOOTAGE HITAM two\n"), 0o644))

	p, err := PlanFromFolder(FolderRequest{
		ImageDir:  filepath.Join(f.dir, "images"),
		Scripts:   []string{scriptPath},
		AudioPath: f.audio,
	})
	require.NoError(t, err)
	require.Len(t, p.Scenes, 3)
	assert.Equal(t, "slide 1.png", filepath.Base(p.Scenes[0].ImagePath))
	assert.Empty(t, p.Scenes[1].ImagePath)
	assert.Equal(t, "slide 10.png", filepath.Base(p.Scenes[2].ImagePath))
	assert.Equal(t, config.DefaultEncodeSettings(), p.Settings)

	_, err = PlanFromFolder(FolderRequest{ImageDir: t.TempDir()})
	assert.ErrorIs(t, err, source.ErrNoImages)
}

func TestServe(t *testing.T) {
	f := newFixture(t)
	svc := newService(t, "ok")
	_, events := svc.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := make(chan Call)
	served := make(chan error, 1)
	go func() { served <- svc.Serve(ctx, calls) }()

	replies := make(chan Reply, 1)
	calls <- Call{Op: OpCreate, Create: Request{
		Images:     f.images,
		AudioPath:  f.audio,
		OutputPath: filepath.Join(f.dir, "served.mp4"),
		Settings:   config.DefaultEncodeSettings(),
	}, Reply: replies}
	reply := <-replies
	require.NoError(t, reply.Err)
	require.NotEmpty(t, reply.JobID)

	terminal, _ := nextTerminal(t, events)
	assert.Equal(t, reply.JobID, terminal.JobID)

	calls <- Call{Op: OpCancel, JobID: "nope", Reply: replies}
	assert.ErrorIs(t, (<-replies).Err, ErrUnknownJob)

	calls <- Call{Op: "explode", Reply: replies}
	assert.Error(t, (<-replies).Err)

	close(calls)
	assert.NoError(t, <-served)
}

func TestBroadcasterAlwaysDeliversTerminal(t *testing.T) {
	b := newBroadcaster()
	_, ch := b.subscribe()
	for i := 0; i < subscriberBuffer*2; i++ {
		b.publish(Event{JobID: "j", Progress: &engine.ProgressEvent{Percent: float64(i)}})
	}
	b.publish(Event{JobID: "j", Result: &engine.Result{State: engine.Completed}})

	var last Event
	for i := 0; i < subscriberBuffer; i++ {
		last = <-ch
	}
	assert.True(t, last.Terminal(), "terminal event was dropped")
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := newBroadcaster()
	id, ch := b.subscribe()
	b.unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)
	b.publish(Event{JobID: "x"})
}

func TestDefaultOutputPath(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, filepath.Join("out", "voice_2025-03-04_05-06-07.mov"), DefaultOutputPath("out", "/a/voice.mp3", "mov", now))
	assert.Equal(t, filepath.Join("output", "cinematic-video.mp4"), DefaultOutputPath("", "", "", now))
}

func TestCloseRejectsNewJobs(t *testing.T) {
	f := newFixture(t)
	svc := newService(t, "ok")
	svc.Close()
	_, err := svc.CreateVideo(context.Background(), Request{Images: f.images, AudioPath: f.audio, Settings: config.DefaultEncodeSettings()})
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, errors.Is(err, engine.ErrBusy))
}

func TestCloseStopsJobsStartedConcurrently(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 25; i++ {
		svc := newService(t, "hang")
		req := Request{
			Images:     f.images,
			AudioPath:  f.audio,
			OutputPath: filepath.Join(f.dir, fmt.Sprintf("race-%d.mp4", i)),
			Settings:   config.DefaultEncodeSettings(),
		}

		type created struct {
			handle *engine.JobHandle
			err    error
		}
		done := make(chan created, 1)
		go func() {
			h, err := svc.CreateVideo(context.Background(), req)
			done <- created{h, err}
		}()
		time.Sleep(time.Duration(i%4) * time.Millisecond)
		svc.Close()

		got := <-done
		if got.err != nil {
			require.ErrorIs(t, got.err, ErrClosed)
		} else {
			select {
			case <-got.handle.Done():
			default:
				t.Fatalf("iteration %d: job still running after Close", i)
			}
			assert.Equal(t, engine.Cancelled, got.handle.State())
		}
		assert.Equal(t, engine.Idle, svc.runner.State(), "iteration %d", i)
	}
}
