// Package coordinator owns task lifecycle: submit, dispatch, progress,
// completion and crash recovery. It is grounded on the teacher's
// internal/transcode/service.go (transcodeService's run loop and task
// state machine) generalized to route through internal/dispatch's
// per-user fairness instead of a single global queue, and on the original
// Python service's run_ffmpeg_process for the idempotent promote-on-success
// semantics.
package coordinator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arcflux/reeltime/internal/capability"
	"github.com/arcflux/reeltime/internal/dispatch"
	"github.com/arcflux/reeltime/internal/event"
	"github.com/arcflux/reeltime/internal/hub"
	"github.com/arcflux/reeltime/internal/runner"
	"github.com/arcflux/reeltime/internal/store"
	"github.com/arcflux/reeltime/internal/synth"
	"github.com/arcflux/reeltime/internal/workspace"
	"github.com/arcflux/reeltime/pkg/logger"
)

var log = logger.Get("Coordinator")

// Request describes a transcode a caller wants performed against an
// already-uploaded asset.
type Request struct {
	OwnerID                 uuid.UUID
	SourceAssetID           uuid.UUID
	SourcePath              string
	SourceDisplayName       string
	SourceDuration          time.Duration
	VideoCodec              string
	AudioCodec              string
	Container               string
	Preset                  string
	TrimStart               *time.Duration
	TrimEnd                 *time.Duration
	VideoBitrate            string
	AudioBitrate            string
	Resolution              *synth.Resolution
	UseHardwareAcceleration bool
}

type Coordinator struct {
	store        *store.Store
	workspace    *workspace.Workspace
	dispatcher   *dispatch.Dispatcher
	hub          *hub.Hub
	events       event.EventCoordinator
	runner       *runner.Runner
	detector     *capability.Detector
	ffmpegBin    string
	stallTimeout time.Duration
}

func New(
	st *store.Store,
	ws *workspace.Workspace,
	d *dispatch.Dispatcher,
	h *hub.Hub,
	events event.EventCoordinator,
	r *runner.Runner,
	detector *capability.Detector,
	ffmpegBin string,
	stallTimeout time.Duration,
) *Coordinator {
	return &Coordinator{
		store:        st,
		workspace:    ws,
		dispatcher:   d,
		hub:          h,
		events:       events,
		runner:       r,
		detector:     detector,
		ffmpegBin:    ffmpegBin,
		stallTimeout: stallTimeout,
	}
}

// RecoverFromCrash marks every task left pending or processing across a
// restart as failed - no runner is left alive still working on them. Must
// be called once at startup, before the dispatcher starts accepting work.
func (c *Coordinator) RecoverFromCrash() error {
	n, err := c.store.MarkNonTerminalTasksFailed("task interrupted by service restart")
	if err != nil {
		return fmt.Errorf("crash recovery failed: %w", err)
	}
	if n > 0 {
		log.Infof("crash recovery marked %d task(s) failed\n", n)
	}
	return nil
}

// Submit validates and reconciles req, persists a pending task record, and
// enqueues it for dispatch. Returns the new task's ID.
func (c *Coordinator) Submit(ctx context.Context, req Request) (uuid.UUID, error) {
	reconciled := synth.Reconcile(synth.Request{
		SourcePath:              req.SourcePath,
		VideoCodec:              req.VideoCodec,
		AudioCodec:              req.AudioCodec,
		Container:               req.Container,
		Preset:                  req.Preset,
		TrimStart:               req.TrimStart,
		TrimEnd:                 req.TrimEnd,
		VideoBitrate:            req.VideoBitrate,
		AudioBitrate:            req.AudioBitrate,
		Resolution:              req.Resolution,
		UseHardwareAcceleration: req.UseHardwareAcceleration,
	})

	taskID := uuid.New()
	ext := extensionFor(reconciled.Container)
	temp, final, err := c.workspace.TempAndFinalOutputPaths(req.OwnerID, taskID, ext)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to allocate output paths: %w", err)
	}

	profile, err := c.detector.Detect(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to detect capability profile: %w", err)
	}

	argv, err := synth.BuildArgv(reconciled, profile, temp)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to build transcode command: %w", err)
	}

	now := time.Now()
	task := store.Task{
		ID:                taskID,
		OwnerID:           req.OwnerID,
		SourceAssetID:     req.SourceAssetID,
		SourceDisplayName: req.SourceDisplayName,
		Argv:              strings.Join(argv, "\x00"),
		PlannedFinalPath:  final,
		Status:            string(store.TaskStatusPending),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := c.store.CreateTask(task); err != nil {
		return uuid.Nil, fmt.Errorf("failed to persist task: %w", err)
	}

	c.dispatcher.Enqueue(dispatch.Task{
		ID:      taskID,
		OwnerID: req.OwnerID,
		Run: func(taskCtx context.Context) {
			c.run(taskCtx, taskID, req.OwnerID, argv, temp, final, req.SourceDuration, req.SourceDisplayName, reconciled.Container)
		},
	})

	return taskID, nil
}

func (c *Coordinator) run(ctx context.Context, taskID, ownerID uuid.UUID, argv []string, temp, final string, duration time.Duration, sourceName, container string) {
	if err := c.store.UpdateTaskProgress(taskID, string(store.TaskStatusProcessing), 0, ""); err != nil {
		log.Errorf("failed to mark task %s processing: %v\n", taskID, err)
	}
	c.events.Dispatch(event.TaskUpdate, taskID)

	err := c.runner.Run(ctx, taskID.String(), c.ffmpegBin, argv, duration, c.stallTimeout, func(p runner.Progress) {
		percent := p.Percent
		if percent < 0 {
			percent = 0
		}
		if updateErr := c.store.UpdateTaskProgress(taskID, string(store.TaskStatusProcessing), percent, ""); updateErr != nil {
			log.Warnf("failed to persist progress for task %s: %v\n", taskID, updateErr)
		}
		c.hub.Publish(taskID, hub.Message{Kind: hub.KindProgress, Percent: percent})
		c.events.Dispatch(event.TaskProgress, taskID)
	})

	if err != nil {
		detail := err.Error()
		if statusErr := c.store.UpdateTaskProgress(taskID, string(store.TaskStatusFailed), 0, detail); statusErr != nil {
			log.Errorf("failed to mark task %s failed: %v\n", taskID, statusErr)
		}
		_ = workspace.Remove(temp)
		c.hub.Publish(taskID, hub.Message{Kind: hub.KindFailed, Detail: detail})
		c.events.Dispatch(event.TaskComplete, taskID)
		return
	}

	if err := workspace.PromoteOutput(temp, final); err != nil {
		log.Errorf("failed to promote output for task %s: %v\n", taskID, err)
		if statusErr := c.store.UpdateTaskProgress(taskID, string(store.TaskStatusFailed), 0, err.Error()); statusErr != nil {
			log.Errorf("failed to mark task %s failed after promote error: %v\n", taskID, statusErr)
		}
		c.hub.Publish(taskID, hub.Message{Kind: hub.KindFailed, Detail: err.Error()})
		c.events.Dispatch(event.TaskComplete, taskID)
		return
	}

	size, _ := workspace.Size(final)
	assetID := uuid.New()
	asset := store.Asset{
		ID:          assetID,
		OwnerID:     ownerID,
		DisplayName: processedDisplayName(sourceName, container),
		StoredPath:  final,
		Status:      string(store.AssetStatusUploaded),
		SizeBytes:   size,
		CreatedAt:   time.Now(),
	}
	if err := c.store.CreateAsset(asset); err != nil {
		log.Errorf("failed to persist output asset for task %s: %v\n", taskID, err)
	}
	if err := c.store.CompleteTask(taskID, assetID); err != nil {
		log.Errorf("failed to mark task %s complete: %v\n", taskID, err)
	}

	c.hub.Publish(taskID, hub.Message{Kind: hub.KindComplete, Percent: 100})
	c.events.Dispatch(event.AssetCreated, assetID)
	c.events.Dispatch(event.TaskComplete, taskID)
}

// Cancel requests cancellation of taskID, whether still queued or already
// running.
func (c *Coordinator) Cancel(taskID uuid.UUID) bool {
	return c.dispatcher.Cancel(taskID)
}

func extensionFor(container string) string {
	return "." + container
}

// processedDisplayName builds the completed asset's name from the source
// asset's - "clip.mp4" processed to mp4 becomes "clip_processed.mp4" -
// regardless of what container the source file itself used.
func processedDisplayName(sourceName, container string) string {
	stem := strings.TrimSuffix(sourceName, filepath.Ext(sourceName))
	return stem + "_processed." + container
}
