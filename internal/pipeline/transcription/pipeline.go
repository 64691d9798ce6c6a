// Package transcription implements the C5 state machine: enqueue, dispatch,
// persist, primary-selection, and retry, modeled on the teacher's
// taskprocessor.go shape but notify-channel-driven instead of fixed-ticker,
// so jobs start promptly after Enqueue rather than waiting for the next
// tick (spec.md §4.5 step 2).
package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/gaspermerela/journal-service-sub002/internal/blob"
	"github.com/gaspermerela/journal-service-sub002/internal/config"
	"github.com/gaspermerela/journal-service-sub002/internal/fieldcodec"
	"github.com/gaspermerela/journal-service-sub002/internal/kek"
	"github.com/gaspermerela/journal-service-sub002/internal/model"
	"github.com/gaspermerela/journal-service-sub002/internal/pipeline/retry"
	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
	registrytranscription "github.com/gaspermerela/journal-service-sub002/internal/registry/transcription"
	"github.com/gaspermerela/journal-service-sub002/internal/security"
)

// Request is what a caller hands Enqueue (spec.md §6 POST /transcribe body).
type Request struct {
	Provider          string
	ModelID           string
	Language          string
	Temperature       *float64
	BeamSize          *int
	EnableDiarization bool
	SpeakerCount      int
	Parameters        map[string]any
}

// Dispatcher runs the transcription state machine against Store, loading
// provider adapters from the registry on demand and bounding in-flight
// provider calls per provider name.
type Dispatcher struct {
	store  registrystore.Store
	audio  *blob.S3Store
	kek    kek.Backend
	cfg    *config.Config
	notify chan struct{}

	mu     sync.Mutex
	sems   map[string]*semaphore.Weighted
	loaded map[string]registrytranscription.Provider
}

// NewDispatcher builds a Dispatcher. Provider adapters are loaded lazily on
// first use via the registrytranscription registry rather than eagerly at
// construction, so an unconfigured provider never blocks startup.
func NewDispatcher(store registrystore.Store, audio *blob.S3Store, kekBackend kek.Backend, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		store:  store,
		audio:  audio,
		kek:    kekBackend,
		cfg:    cfg,
		notify: make(chan struct{}, 1),
		sems:   make(map[string]*semaphore.Weighted),
		loaded: make(map[string]registrytranscription.Provider),
	}
}

// Enqueue validates the request against the provider's parameter schema,
// inserts a pending Transcription row, and wakes the dispatch loop.
func (d *Dispatcher) Enqueue(ctx context.Context, voiceEntryID uuid.UUID, req Request) (uuid.UUID, error) {
	provider, err := d.providerFor(ctx, req.Provider)
	if err != nil {
		return uuid.Nil, &registrystore.ValidationError{Field: "transcription_provider", Message: err.Error()}
	}

	params := map[string]any{}
	for k, v := range req.Parameters {
		params[k] = v
	}
	if req.Temperature != nil {
		params["temperature"] = *req.Temperature
	}
	if req.BeamSize != nil {
		params["beam_size"] = *req.BeamSize
	}
	if req.Language != "" {
		params["language"] = req.Language
	}
	params["enable_diarization"] = req.EnableDiarization
	if req.SpeakerCount > 0 {
		params["speaker_count"] = req.SpeakerCount
	}

	schema := provider.Descriptor().Parameters
	validated, err := registrytranscription.ValidateParameters(schema, params)
	if err != nil {
		return uuid.Nil, &registrystore.ValidationError{Field: "parameters", Message: err.Error()}
	}

	language := req.Language
	if language == "" {
		language = "auto"
	}

	row := &model.Transcription{
		ID:                uuid.New(),
		VoiceEntryID:      voiceEntryID,
		Status:            model.TranscriptionPending,
		ProviderName:      provider.ID(),
		ModelName:         req.ModelID,
		LanguageCode:      language,
		EnableDiarization: req.EnableDiarization,
		SpeakerCount:      firstPositive(req.SpeakerCount, 1),
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	if t, ok := validated["temperature"].(float64); ok {
		row.Temperature = &t
	}
	if bs, ok := validated["beam_size"].(int); ok {
		row.BeamSize = &bs
	}

	if err := d.store.CreateTranscription(ctx, row); err != nil {
		return uuid.Nil, fmt.Errorf("transcription pipeline: enqueue: %w", err)
	}

	d.wake()
	return row.ID, nil
}

// Start runs the dispatch loop until ctx is cancelled: it wakes on Enqueue
// notifications and falls back to a slow poll in case a notification was
// dropped while the channel was full (mirrors the teacher's ticker as a
// safety net rather than the primary trigger).
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.notify:
			d.drainPending(ctx)
		case <-ticker.C:
			d.drainPending(ctx)
		}
	}
}

func (d *Dispatcher) wake() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) drainPending(ctx context.Context) {
	ids, err := d.store.ListPendingTranscriptionIDs(ctx, 100)
	if err != nil {
		log.Error("transcription pipeline: list pending failed", "err", err)
		return
	}
	for _, id := range ids {
		id := id
		go d.dispatchOne(ctx, id)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, id uuid.UUID) {
	claimed, err := d.store.ClaimTranscription(ctx, id)
	if err != nil {
		log.Error("transcription pipeline: claim failed", "id", id, "err", err)
		return
	}
	if !claimed {
		return // another worker won the compare-and-set
	}

	row, err := d.store.GetTranscription(ctx, id)
	if err != nil {
		log.Error("transcription pipeline: load claimed row failed", "id", id, "err", err)
		return
	}

	voiceEntry, err := d.loadVoiceEntryUnscoped(ctx, row.VoiceEntryID)
	if err != nil {
		d.fail(ctx, id, err)
		return
	}

	provider, err := d.providerFor(ctx, row.ProviderName)
	if err != nil {
		d.fail(ctx, id, &registrystore.PermanentError{Message: "provider unavailable", Cause: err})
		return
	}

	sem := d.semaphoreFor(row.ProviderName)
	if err := sem.Acquire(ctx, 1); err != nil {
		return // context cancelled while waiting for a slot
	}
	defer sem.Release(1)
	security.ProviderInFlight.WithLabelValues(row.ProviderName).Inc()
	defer security.ProviderInFlight.WithLabelValues(row.ProviderName).Dec()

	timeoutCtx, cancel := context.WithTimeout(ctx, d.cfg.TranscriptionTimeout)
	defer cancel()

	handle := d.audio.Handle(voiceEntry.AudioStorageKey)
	params := map[string]any{
		"language":           row.LanguageCode,
		"enable_diarization": row.EnableDiarization,
		"speaker_count":      row.SpeakerCount,
	}
	if row.Temperature != nil {
		params["temperature"] = *row.Temperature
	}
	if row.BeamSize != nil {
		params["beam_size"] = *row.BeamSize
	}

	var resp registrytranscription.Response
	policy := retry.Policy{
		MaxAttempts: d.cfg.RetryMaxAttempts,
		BaseDelay:   d.cfg.RetryBaseDelay,
		Factor:      d.cfg.RetryFactor,
		Jitter:      d.cfg.RetryJitter,
	}
	attempt := 0
	var lastErr error
	runErr := retry.Run(timeoutCtx, policy, func(attemptCtx context.Context) error {
		if attempt > 0 {
			outcome := "transient"
			if !retry.IsTransient(lastErr) {
				outcome = "permanent"
			}
			security.ProviderRetriesTotal.WithLabelValues(row.ProviderName, outcome).Inc()
		}
		attempt++
		var callErr error
		resp, callErr = provider.Transcribe(attemptCtx, registrytranscription.Request{
			Audio:      handle,
			ModelID:    row.ModelName,
			Parameters: params,
		})
		lastErr = callErr
		return callErr
	})
	if runErr != nil {
		d.fail(ctx, id, runErr)
		return
	}

	codec := fieldcodec.New(d.store.DB(), d.kek)
	defer codec.Close()

	cipherText, err := codec.EncryptField(ctx, row.VoiceEntryID, fieldcodec.FieldTranscript, []byte(resp.Text))
	if err != nil {
		d.fail(ctx, id, &registrystore.PermanentError{Message: "encrypting transcript", Cause: err})
		return
	}

	var cipherSegments []byte
	if len(resp.Segments) > 0 {
		segBytes, err := json.Marshal(resp.Segments)
		if err != nil {
			d.fail(ctx, id, &registrystore.PermanentError{Message: "marshaling segments", Cause: err})
			return
		}
		cipherSegments, err = codec.EncryptField(ctx, row.VoiceEntryID, fieldcodec.FieldSegments, segBytes)
		if err != nil {
			d.fail(ctx, id, &registrystore.PermanentError{Message: "encrypting segments", Cause: err})
			return
		}
	}

	if err := d.store.CompleteTranscription(ctx, id, cipherText, cipherSegments); err != nil {
		log.Error("transcription pipeline: complete failed", "id", id, "err", err)
		return
	}

	promoted, err := d.store.PromoteTranscription(ctx, row.VoiceEntryID, id)
	if err != nil {
		log.Error("transcription pipeline: promote failed", "id", id, "err", err)
		return
	}
	log.Info("transcription completed", "id", id, "voice_entry_id", row.VoiceEntryID, "promoted_primary", promoted)
}

func (d *Dispatcher) fail(ctx context.Context, id uuid.UUID, err error) {
	permanent := !retry.IsTransient(err)
	if failErr := d.store.FailTranscription(ctx, id, permanent, err.Error()); failErr != nil {
		log.Error("transcription pipeline: fail transcription failed", "id", id, "err", failErr)
	}
}

func (d *Dispatcher) providerFor(ctx context.Context, name string) (registrytranscription.Provider, error) {
	if name == "" {
		name = d.cfg.DefaultTranscriptionProvider
	}

	d.mu.Lock()
	if p, ok := d.loaded[name]; ok {
		d.mu.Unlock()
		return p, nil
	}
	d.mu.Unlock()

	loader, err := registrytranscription.Select(name)
	if err != nil {
		return nil, err
	}
	provider, err := loader(ctx, d.cfg)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.loaded[name]; ok {
		return existing, nil
	}
	d.loaded[name] = provider
	return provider, nil
}

// semaphoreFor is called concurrently from the per-row goroutines that
// drainPending starts, and shares d.mu with providerFor (also reached from
// Enqueue on the HTTP handler goroutine), so the lazily-created map must be
// guarded rather than read/written bare.
func (d *Dispatcher) semaphoreFor(provider string) *semaphore.Weighted {
	d.mu.Lock()
	defer d.mu.Unlock()
	sem, ok := d.sems[provider]
	if !ok {
		sem = semaphore.NewWeighted(int64(firstPositive(d.cfg.MaxInFlightPerProvider, 1)))
		d.sems[provider] = sem
	}
	return sem
}

// loadVoiceEntryUnscoped fetches a VoiceEntry for internal pipeline use,
// where the caller is the dispatcher rather than a user-scoped request, so
// it bypasses the owner check GetVoiceEntry enforces at the HTTP boundary.
func (d *Dispatcher) loadVoiceEntryUnscoped(ctx context.Context, id uuid.UUID) (*model.VoiceEntry, error) {
	var entry model.VoiceEntry
	if err := d.store.DB().WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, fmt.Errorf("transcription pipeline: loading voice entry %s: %w", id, err)
	}
	return &entry, nil
}

func firstPositive(candidates ...int) int {
	for _, c := range candidates {
		if c > 0 {
			return c
		}
	}
	return 1
}
