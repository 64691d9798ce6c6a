// Package cleanup implements the C6 state machine: resolve the primary
// transcription, render the active prompt template, call an LLM provider,
// parse its response leniently, and persist ciphertext — same shape as
// internal/pipeline/transcription, notify-channel-driven.
package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	"github.com/gaspermerela/journal-service-sub002/internal/fieldcodec"
	"github.com/gaspermerela/journal-service-sub002/internal/kek"
	"github.com/gaspermerela/journal-service-sub002/internal/model"
	"github.com/gaspermerela/journal-service-sub002/internal/pipeline/retry"
	registryllm "github.com/gaspermerela/journal-service-sub002/internal/registry/llm"
	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
	"github.com/gaspermerela/journal-service-sub002/internal/security"
)

// Request is what a caller hands Enqueue (spec.md §6 POST /cleanup body).
type Request struct {
	Provider           string
	ModelID            string
	Temperature        *float64
	TopP               *float64
	PromptTemplateName string
	EntryType          string
	Parameters         map[string]any
}

// Dispatcher runs the cleanup state machine.
type Dispatcher struct {
	store  registrystore.Store
	kek    kek.Backend
	cfg    *config.Config
	notify chan struct{}

	mu     sync.Mutex
	sems   map[string]*semaphore.Weighted
	loaded map[string]registryllm.Provider
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(store registrystore.Store, kekBackend kek.Backend, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		store:  store,
		kek:    kekBackend,
		cfg:    cfg,
		notify: make(chan struct{}, 1),
		sems:   make(map[string]*semaphore.Weighted),
		loaded: make(map[string]registryllm.Provider),
	}
}

// Enqueue resolves the voice entry's current primary transcription (failing
// Conflict/NoPrimary if none exists), captures its id by value (I4), and
// inserts a pending CleanedEntry row.
func (d *Dispatcher) Enqueue(ctx context.Context, voiceEntryID uuid.UUID, ownerUserID string, req Request) (uuid.UUID, error) {
	primary, err := d.store.GetPrimaryTranscription(ctx, voiceEntryID)
	if err != nil {
		return uuid.Nil, &registrystore.ConflictError{Message: "no primary transcription for this voice entry", Code: "NoPrimary"}
	}

	provider, err := d.providerFor(ctx, req.Provider)
	if err != nil {
		return uuid.Nil, &registrystore.ValidationError{Field: "llm_provider", Message: err.Error()}
	}

	params := map[string]any{}
	for k, v := range req.Parameters {
		params[k] = v
	}
	if req.Temperature != nil {
		params["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		params["top_p"] = *req.TopP
	}
	schema := provider.Descriptor().Parameters
	validated, err := registryllm.ValidateParameters(schema, params)
	if err != nil {
		return uuid.Nil, &registrystore.ValidationError{Field: "parameters", Message: err.Error()}
	}

	row := &model.CleanedEntry{
		ID:              uuid.New(),
		VoiceEntryID:    voiceEntryID,
		TranscriptionID: primary.ID,
		OwnerUserID:     ownerUserID,
		ProviderName:    provider.ID(),
		ModelName:       req.ModelID,
		Status:          model.CleanupPending,
		CreatedAt:       time.Now(),
	}
	if t, ok := validated["temperature"].(float64); ok {
		row.Temperature = &t
	}
	if p, ok := validated["top_p"].(float64); ok {
		row.TopP = &p
	}

	tpl, err := d.store.GetActivePromptTemplate(ctx, req.EntryType)
	if err != nil {
		return uuid.Nil, &registrystore.ConflictError{Message: "no active prompt template for entry type " + req.EntryType, Code: "PromptTemplateMissing"}
	}
	row.PromptTemplateID = &tpl.ID

	if err := d.store.CreateCleanedEntry(ctx, row); err != nil {
		return uuid.Nil, fmt.Errorf("cleanup pipeline: enqueue: %w", err)
	}

	d.wake()
	return row.ID, nil
}

// Start runs the dispatch loop until ctx is cancelled.
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
	ids, err := d.store.ListPendingCleanupIDs(ctx, 100)
	if err != nil {
		log.Error("cleanup pipeline: list pending failed", "err", err)
		return
	}
	for _, id := range ids {
		id := id
		go d.dispatchOne(ctx, id)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, id uuid.UUID) {
	claimed, err := d.store.ClaimCleanup(ctx, id)
	if err != nil {
		log.Error("cleanup pipeline: claim failed", "id", id, "err", err)
		return
	}
	if !claimed {
		return
	}

	row, err := d.store.GetCleanedEntry(ctx, id)
	if err != nil {
		log.Error("cleanup pipeline: load claimed row failed", "id", id, "err", err)
		return
	}

	codec := fieldcodec.New(d.store.DB(), d.kek)
	defer codec.Close()

	source, err := d.store.GetTranscription(ctx, row.TranscriptionID)
	if err != nil {
		d.fail(ctx, id, &registrystore.PermanentError{Message: "loading source transcription", Cause: err})
		return
	}
	plainTranscript, err := codec.DecryptField(ctx, row.VoiceEntryID, fieldcodec.FieldTranscript, source.TranscribedText)
	if err != nil {
		d.fail(ctx, id, err)
		return
	}

	tpl, err := d.templateForRow(ctx, row)
	if err != nil {
		d.fail(ctx, id, &registrystore.PermanentError{Message: "loading prompt template", Cause: err})
		return
	}
	prompt := strings.ReplaceAll(tpl.TemplateText, "{transcription_text}", string(plainTranscript))

	provider, err := d.providerFor(ctx, row.ProviderName)
	if err != nil {
		d.fail(ctx, id, &registrystore.PermanentError{Message: "provider unavailable", Cause: err})
		return
	}

	sem := d.semaphoreFor(row.ProviderName)
	if err := sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer sem.Release(1)
	security.ProviderInFlight.WithLabelValues(row.ProviderName).Inc()
	defer security.ProviderInFlight.WithLabelValues(row.ProviderName).Dec()

	params := map[string]any{}
	if row.Temperature != nil {
		params["temperature"] = *row.Temperature
	}
	if row.TopP != nil {
		params["top_p"] = *row.TopP
	}

	var resp registryllm.Response
	policy := retry.Policy{
		MaxAttempts: d.cfg.RetryMaxAttempts,
		BaseDelay:   d.cfg.RetryBaseDelay,
		Factor:      d.cfg.RetryFactor,
		Jitter:      d.cfg.RetryJitter,
	}
	attempt := 0
	var lastErr error
	runErr := retry.Run(ctx, policy, func(runCtx context.Context) error {
		if attempt > 0 {
			outcome := "transient"
			if !retry.IsTransient(lastErr) {
				outcome = "permanent"
			}
			security.ProviderRetriesTotal.WithLabelValues(row.ProviderName, outcome).Inc()
		}
		attempt++
		attemptCtx, cancel := context.WithTimeout(runCtx, d.cfg.LLMTimeout)
		defer cancel()
		var callErr error
		resp, callErr = provider.Complete(attemptCtx, registryllm.Request{
			ModelID:    row.ModelName,
			Prompt:     prompt,
			Parameters: params,
		})
		lastErr = callErr
		return callErr
	})
	if runErr != nil {
		d.fail(ctx, id, runErr)
		return
	}

	cleanedText := extractCleanedText(resp.Text)
	cipherText, err := codec.EncryptField(ctx, row.VoiceEntryID, fieldcodec.FieldCleanedText, []byte(cleanedText))
	if err != nil {
		d.fail(ctx, id, &registrystore.PermanentError{Message: "encrypting cleaned text", Cause: err})
		return
	}

	if err := d.store.CompleteCleanup(ctx, id, cipherText, resp.Text); err != nil {
		log.Error("cleanup pipeline: complete failed", "id", id, "err", err)
		return
	}

	promoted, err := d.store.PromoteCleanup(ctx, row.VoiceEntryID, id)
	if err != nil {
		log.Error("cleanup pipeline: promote failed", "id", id, "err", err)
		return
	}
	log.Info("cleanup completed", "id", id, "voice_entry_id", row.VoiceEntryID, "promoted_primary", promoted)
}

func (d *Dispatcher) templateForRow(ctx context.Context, row *model.CleanedEntry) (*model.PromptTemplate, error) {
	if row.PromptTemplateID == nil {
		return nil, fmt.Errorf("cleanup pipeline: row %s has no prompt template id", row.ID)
	}
	var tpl model.PromptTemplate
	if err := d.store.DB().WithContext(ctx).Where("id = ?", *row.PromptTemplateID).First(&tpl).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (d *Dispatcher) fail(ctx context.Context, id uuid.UUID, err error) {
	permanent := !retry.IsTransient(err)
	if failErr := d.store.FailCleanup(ctx, id, permanent, err.Error()); failErr != nil {
		log.Error("cleanup pipeline: fail cleanup failed", "id", id, "err", failErr)
	}
}

func (d *Dispatcher) providerFor(ctx context.Context, name string) (registryllm.Provider, error) {
	if name == "" {
		name = d.cfg.DefaultLLMProvider
	}

	d.mu.Lock()
	if p, ok := d.loaded[name]; ok {
		d.mu.Unlock()
		return p, nil
	}
	d.mu.Unlock()

	loader, err := registryllm.Select(name)
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

func firstPositive(candidates ...int) int {
	for _, c := range candidates {
		if c > 0 {
			return c
		}
	}
	return 1
}

// extractCleanedText implements spec.md §4.6's lenient post-processing: pull
// the largest balanced JSON object out of the response and read its
// cleaned_text field; if that fails for any reason, treat the whole
// response as the cleaned text.
func extractCleanedText(raw string) string {
	obj, ok := largestBalancedObject(raw)
	if !ok {
		return raw
	}
	var parsed struct {
		CleanedText string `json:"cleaned_text"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil || parsed.CleanedText == "" {
		return raw
	}
	return parsed.CleanedText
}

// largestBalancedObject scans raw for every top-level brace-balanced
// substring ('{' ... matching '}') and returns the widest one.
func largestBalancedObject(raw string) (string, bool) {
	best := ""
	depth, start := 0, 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && i+1-start > len(best) {
				best = raw[start : i+1]
			}
		}
	}
	return best, best != ""
}
