package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/internal/pharmacy/repository"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
)

// ============================================================================
// IN-MEMORY STORES
// ============================================================================

// fakeTx runs fn directly and counts calls.
type fakeTx struct {
	calls int
}

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type memInventory struct {
	mu   sync.Mutex
	lots []domain.InventoryLot
	seq  int
}

func (m *memInventory) add(lot domain.InventoryLot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lot.ID == "" {
		m.seq++
		lot.ID = fmt.Sprintf("lot-%d", m.seq)
	}
	m.lots = append(m.lots, lot)
}

func (m *memInventory) find(id string) *domain.InventoryLot {
	for i := range m.lots {
		if m.lots[i].ID == id {
			return &m.lots[i]
		}
	}
	return nil
}

func (m *memInventory) quantity(lotNumber string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lots {
		if l.LotNumber == lotNumber {
			return l.Quantity
		}
	}
	return -1
}

func (m *memInventory) available(medicationID, pharmacyID string) []domain.InventoryLot {
	var out []domain.InventoryLot
	for _, l := range m.lots {
		if l.MedicationID == medicationID && l.PharmacyID == pharmacyID && l.IsActive && l.Quantity > 0 {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExpirationDate.Equal(out[j].ExpirationDate) {
			return out[i].ExpirationDate.Before(out[j].ExpirationDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *memInventory) Create(_ context.Context, lot *domain.InventoryLot) error {
	m.add(*lot)
	m.mu.Lock()
	lot.ID = m.lots[len(m.lots)-1].ID
	m.mu.Unlock()
	return nil
}

func (m *memInventory) GetByID(_ context.Context, id string) (*domain.InventoryLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l := m.find(id); l != nil {
		cp := *l
		return &cp, nil
	}
	return nil, errors.NotFound("Inventory item")
}

func (m *memInventory) Update(_ context.Context, id string, upd domain.InventoryUpdate) (*domain.InventoryLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.find(id)
	if l == nil {
		return nil, errors.NotFound("Inventory item")
	}
	if upd.Quantity != nil {
		l.Quantity = *upd.Quantity
	}
	if upd.ReorderLevel != nil {
		l.ReorderLevel = upd.ReorderLevel
	}
	if upd.ExpirationDate != nil {
		l.ExpirationDate = *upd.ExpirationDate
	}
	cp := *l
	return &cp, nil
}

func (m *memInventory) Deactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.find(id)
	if l == nil {
		return errors.NotFound("Inventory item")
	}
	l.IsActive = false
	return nil
}

func (m *memInventory) LockAvailableLots(_ context.Context, medicationID, pharmacyID string) ([]domain.InventoryLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available(medicationID, pharmacyID), nil
}

func (m *memInventory) ListAvailable(ctx context.Context, medicationID, pharmacyID string) ([]domain.InventoryLot, error) {
	return m.LockAvailableLots(ctx, medicationID, pharmacyID)
}

func (m *memInventory) SumAvailable(_ context.Context, medicationID, pharmacyID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, l := range m.available(medicationID, pharmacyID) {
		total += l.Quantity
	}
	return total, nil
}

func (m *memInventory) ApplyDraw(_ context.Context, lotID string, qty int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.find(lotID)
	if l == nil || l.Quantity < qty {
		return 0, errors.InsufficientInventory(0, qty)
	}
	l.Quantity -= qty
	return l.Quantity, nil
}

func (m *memInventory) Increment(_ context.Context, medicationID, pharmacyID, lotNumber string, qty int) (*domain.InventoryLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.lots {
		l := &m.lots[i]
		if l.MedicationID == medicationID && l.PharmacyID == pharmacyID && l.LotNumber == lotNumber {
			l.Quantity += qty
			l.IsActive = true
			cp := *l
			return &cp, nil
		}
	}
	return nil, errors.LotNotFound(lotNumber)
}

func (m *memInventory) ListByPharmacy(_ context.Context, pharmacyID string, filter domain.InventoryFilter, expiringBefore time.Time) ([]domain.InventoryLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InventoryLot
	for _, l := range m.lots {
		if l.PharmacyID != pharmacyID || !l.IsActive {
			continue
		}
		if filter.MedicationID != "" && l.MedicationID != filter.MedicationID {
			continue
		}
		if filter.ExpiringSoon && !l.ExpirationDate.Before(expiringBefore) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *memInventory) ListReorder(_ context.Context, pharmacyID string) ([]domain.InventoryLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InventoryLot
	for _, l := range m.lots {
		if l.PharmacyID == pharmacyID && l.IsActive && l.AtOrBelowReorder() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memInventory) ListExpiring(_ context.Context, pharmacyID string, from, until time.Time) ([]domain.InventoryLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InventoryLot
	for _, l := range m.lots {
		if l.PharmacyID == pharmacyID && l.IsActive && l.Quantity > 0 &&
			!l.ExpirationDate.Before(from) && !l.ExpirationDate.After(until) {
			out = append(out, l)
		}
	}
	return out, nil
}

type memPrescriptions struct {
	byID map[string]*domain.Prescription
}

func (m *memPrescriptions) GetByID(_ context.Context, id string) (*domain.Prescription, error) {
	rx, ok := m.byID[id]
	if !ok {
		return nil, errors.NotFound("Prescription")
	}
	cp := *rx
	cp.Items = append([]domain.PrescriptionItem(nil), rx.Items...)
	return &cp, nil
}

func (m *memPrescriptions) IncrementRefillUsed(_ context.Context, itemID string) (int, error) {
	for _, rx := range m.byID {
		for i := range rx.Items {
			item := &rx.Items[i]
			if item.ID != itemID {
				continue
			}
			if item.RefillsUsed >= item.RefillsAllowed {
				return 0, errors.RefillsExhausted(item.RefillsUsed, item.RefillsAllowed)
			}
			item.RefillsUsed++
			return item.RefillsUsed, nil
		}
	}
	return 0, errors.NotFound("Prescription item")
}

type memMedications map[string]*domain.Medication

func (m memMedications) GetByID(_ context.Context, id string) (*domain.Medication, error) {
	if med, ok := m[id]; ok {
		return med, nil
	}
	return nil, errors.NotFound("Medication")
}

type memPharmacies map[string]*domain.Pharmacy

func (m memPharmacies) GetByID(_ context.Context, id string) (*domain.Pharmacy, error) {
	if p, ok := m[id]; ok {
		return p, nil
	}
	return nil, errors.NotFound("Pharmacy")
}

type memDispensings struct {
	records []*domain.Dispensing
	now     Clock
}

func (m *memDispensings) find(id string) *domain.Dispensing {
	for _, d := range m.records {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (m *memDispensings) Create(_ context.Context, d *domain.Dispensing) error {
	if d.ID == "" {
		d.ID = fmt.Sprintf("disp-%d", len(m.records)+1)
	}
	d.DispensedAt = m.now()
	d.UpdatedAt = d.DispensedAt
	cp := *d
	m.records = append(m.records, &cp)
	return nil
}

func (m *memDispensings) GetByID(_ context.Context, id string) (*domain.Dispensing, error) {
	if d := m.find(id); d != nil {
		cp := *d
		return &cp, nil
	}
	return nil, errors.NotFound("Dispensing")
}

func (m *memDispensings) GetForUpdate(ctx context.Context, id string) (*domain.Dispensing, error) {
	return m.GetByID(ctx, id)
}

func (m *memDispensings) ListByPatient(_ context.Context, patientID string, limit int) ([]domain.Dispensing, error) {
	var out []domain.Dispensing
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].PatientID == patientID {
			out = append(out, *m.records[i])
		}
	}
	return out, nil
}

func (m *memDispensings) CurrentMedicationNames(_ context.Context, patientID string, since time.Time) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, d := range m.records {
		if d.PatientID != patientID || d.Status != domain.DispensingDispensed || d.DispensedAt.Before(since) {
			continue
		}
		if !seen[d.MedicationName] {
			seen[d.MedicationName] = true
			out = append(out, d.MedicationName)
		}
	}
	return out, nil
}

func (m *memDispensings) UpdateStatus(_ context.Context, id string, status domain.DispensingStatus) (*domain.Dispensing, error) {
	d := m.find(id)
	if d == nil {
		return nil, errors.NotFound("Dispensing")
	}
	d.Status = status
	cp := *d
	return &cp, nil
}

func (m *memDispensings) RecordReturn(_ context.Context, id string, qty int, note string) (*domain.Dispensing, error) {
	d := m.find(id)
	if d == nil {
		return nil, errors.NotFound("Dispensing")
	}
	d.Status = domain.DispensingReturned
	d.QuantityReturned += qty
	if d.Notes == nil {
		d.Notes = &note
	} else {
		joined := *d.Notes + "\n" + note
		d.Notes = &joined
	}
	cp := *d
	return &cp, nil
}

type memControlled struct {
	mu      sync.Mutex
	entries []*domain.ControlledSubstanceLog
}

func (m *memControlled) find(id string) *domain.ControlledSubstanceLog {
	for _, e := range m.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (m *memControlled) Create(_ context.Context, entry *domain.ControlledSubstanceLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("csl-%d", len(m.entries)+1)
	}
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memControlled) GetByID(_ context.Context, id string) (*domain.ControlledSubstanceLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.find(id); e != nil {
		cp := *e
		return &cp, nil
	}
	return nil, errors.NotFound("Controlled substance log")
}

func (m *memControlled) ListByPatientSince(_ context.Context, patientID string, since time.Time) ([]domain.ControlledSubstanceLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ControlledSubstanceLog
	for _, e := range m.entries {
		if e.PatientID == patientID && !e.DispenseDate.Before(since) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memControlled) History(_ context.Context, patientID string, filter domain.HistoryFilter) ([]domain.ControlledSubstanceLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ControlledSubstanceLog
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.PatientID != patientID || (filter.Schedule != "" && e.DEASchedule != filter.Schedule) {
			continue
		}
		out = append(out, *e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *memControlled) ListUnreported(_ context.Context) ([]domain.ControlledSubstanceLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ControlledSubstanceLog
	for _, e := range m.entries {
		if !e.ReportedToPDMP {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memControlled) CountUnreported(ctx context.Context) (int, error) {
	out, err := m.ListUnreported(ctx)
	return len(out), err
}

func (m *memControlled) MarkReported(_ context.Context, id, reportID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.find(id)
	if e == nil {
		return errors.NotFound("Controlled substance log")
	}
	if e.ReportedToPDMP {
		return errors.AlreadyReported(id, *e.ReportID)
	}
	e.ReportedToPDMP = true
	e.ReportID = &reportID
	e.ReportedAt = &at
	return nil
}

func (m *memControlled) Statistics(_ context.Context, _ domain.DateRange) (*domain.PDMPStatistics, error) {
	return &domain.PDMPStatistics{}, nil
}

type memRefs struct {
	interactions []domain.DrugInteraction
	allergies    map[string][]domain.DrugAllergy
	err          error
}

func (m *memRefs) FindInteractions(_ context.Context, drug1, drug2 string) ([]domain.DrugInteraction, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.DrugInteraction
	for _, ix := range m.interactions {
		if (strings.EqualFold(ix.Drug1, drug1) && strings.EqualFold(ix.Drug2, drug2)) ||
			(strings.EqualFold(ix.Drug1, drug2) && strings.EqualFold(ix.Drug2, drug1)) {
			out = append(out, ix)
		}
	}
	return out, nil
}

func (m *memRefs) ActiveAllergies(_ context.Context, patientID string) ([]domain.DrugAllergy, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.allergies[patientID], nil
}

type memAudit struct {
	entries []*repository.AuditEntry
}

func (m *memAudit) Create(_ context.Context, entry *repository.AuditEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memAudit) actions(entityType string) []string {
	var out []string
	for _, e := range m.entries {
		if e.EntityType == entityType {
			out = append(out, e.Action)
		}
	}
	return out
}

// recordingEvents captures published events.
type recordingEvents struct {
	mu        sync.Mutex
	completed []*domain.Dispensing
	returned  []*domain.Dispensing
	rejected  []error
	reported  []string
	lowStock  []string
}

func (r *recordingEvents) DispensingCompleted(_ context.Context, d *domain.Dispensing, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, d)
}

func (r *recordingEvents) DispensingReturned(_ context.Context, d *domain.Dispensing, _ int, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.returned = append(r.returned, d)
}

func (r *recordingEvents) DispensingRejected(_ context.Context, _ *domain.DispenseRequest, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, err)
}

func (r *recordingEvents) PDMPReported(_ context.Context, _ *domain.ControlledSubstanceLog, reportID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = append(r.reported, reportID)
}

func (r *recordingEvents) LowStock(_ context.Context, lot *domain.InventoryLot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lowStock = append(r.lowStock, lot.LotNumber)
}

// stubSubmitter hands out sequential report ids, failing ids listed in fail.
type stubSubmitter struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
	err   error
}

func (s *stubSubmitter) Submit(ctx context.Context, entry *domain.ControlledSubstanceLog) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if s.fail[entry.ID] {
		return "", fmt.Errorf("registry rejected %s", entry.ID)
	}
	return fmt.Sprintf("PDMP-%d", s.calls), nil
}

func ptr[T any](v T) *T {
	return &v
}
