package services

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// WizardRegistry owns the live wizards, one per booking session. A
// background sweep discards wizards idle past their TTL so abandoned tabs
// do not leak drafts or timer handles.
type WizardRegistry struct {
	mu      sync.RWMutex
	wizards map[string]*BookingWizard

	idleTTL  time.Duration
	interval time.Duration
	stopCh   chan struct{}
	logger   *logrus.Logger
}

// NewWizardRegistry creates a new registry
func NewWizardRegistry(idleTTL time.Duration, logger *logrus.Logger) *WizardRegistry {
	return &WizardRegistry{
		wizards:  make(map[string]*BookingWizard),
		idleTTL:  idleTTL,
		interval: 1 * time.Minute,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Add registers a wizard under its id
func (r *WizardRegistry) Add(w *BookingWizard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wizards[w.ID()] = w
}

// Get returns the wizard for the given id
func (r *WizardRegistry) Get(id string) (*BookingWizard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wizards[id]
	return w, ok
}

// FindByMerchantTransaction locates the wizard whose live payment session
// carries the given merchant transaction token (webhook correlation)
func (r *WizardRegistry) FindByMerchantTransaction(token string) (*BookingWizard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wizards {
		if s := w.Session(); s != nil && s.MerchantTransactionID == token {
			return w, true
		}
	}
	return nil, false
}

// FindByDraft locates the wizard owning the given booking draft
func (r *WizardRegistry) FindByDraft(draftID string) (*BookingWizard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wizards {
		if w.Draft().ID == draftID {
			return w, true
		}
	}
	return nil, false
}

// Discard resets and removes a wizard
func (r *WizardRegistry) Discard(id string) {
	r.mu.Lock()
	w, ok := r.wizards[id]
	if ok {
		delete(r.wizards, id)
	}
	r.mu.Unlock()

	if ok {
		w.Reset()
	}
}

// Count returns the number of live wizards
func (r *WizardRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.wizards)
}

// Start begins the background idle sweep
func (r *WizardRegistry) Start() {
	r.logger.WithField("idle_ttl", r.idleTTL).Info("Starting wizard idle sweep")
	go r.run()
}

// Stop stops the background sweep
func (r *WizardRegistry) Stop() {
	close(r.stopCh)
}

func (r *WizardRegistry) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			r.logger.Info("Wizard idle sweep stopped")
			return
		}
	}
}

// sweep discards wizards idle past the TTL
func (r *WizardRegistry) sweep() {
	cutoff := time.Now().Add(-r.idleTTL)

	r.mu.Lock()
	var stale []*BookingWizard
	for id, w := range r.wizards {
		if w.LastActivity().Before(cutoff) || w.Discarded() {
			stale = append(stale, w)
			delete(r.wizards, id)
		}
	}
	r.mu.Unlock()

	for _, w := range stale {
		w.Reset()
	}
	if len(stale) > 0 {
		r.logger.WithField("count", len(stale)).Info("Discarded idle booking wizards")
	}
}
