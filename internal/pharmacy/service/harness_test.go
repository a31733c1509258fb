package service

import (
	"time"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/config"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func daysAgo(n int) time.Time { return testNow.AddDate(0, 0, -n) }

func testPDMPConfig() config.PDMPConfig {
	return config.PDMPConfig{
		LookbackMonths:           6,
		AssumedDaysSupply:        30,
		EarlyRefillToleranceDays: 5,
		MaxPrescribers:           3,
		MaxPharmacies:            3,
		HighDoseQuantity:         90,
		HistoryLimit:             100,
		ReportConcurrency:        4,
	}
}

// harness wires every service against in-memory stores.
type harness struct {
	tx         *fakeTx
	inventory  *memInventory
	rx         *memPrescriptions
	meds       memMedications
	pharmacies memPharmacies
	dispensing *memDispensings
	logs       *memControlled
	refs       *memRefs
	audit      *memAudit
	events     *recordingEvents
	submitter  *stubSubmitter

	ledger  *InventoryLedger
	checker *InteractionChecker
	monitor *ControlledSubstanceMonitor
	orch    *DispensingOrchestrator
}

func newHarness() *harness {
	log := logger.Nop()
	h := &harness{
		tx:         &fakeTx{},
		inventory:  &memInventory{},
		rx:         &memPrescriptions{byID: map[string]*domain.Prescription{}},
		meds:       memMedications{},
		pharmacies: memPharmacies{},
		dispensing: &memDispensings{now: testClock},
		logs:       &memControlled{},
		refs:       &memRefs{allergies: map[string][]domain.DrugAllergy{}},
		audit:      &memAudit{},
		events:     &recordingEvents{},
		submitter:  &stubSubmitter{},
	}

	h.ledger = NewInventoryLedger(h.tx, h.inventory, h.events,
		config.InventoryConfig{DefaultReorderLevel: 10, ExpiringDays: 30}, nil, log)
	h.ledger.now = testClock

	h.checker = NewInteractionChecker(h.refs, nil, nil, log)

	h.monitor = NewControlledSubstanceMonitor(h.logs, h.submitter, nil, h.events, testPDMPConfig(), nil, log)
	h.monitor.now = testClock

	h.orch = NewDispensingOrchestrator(
		h.tx,
		Stores{
			Prescriptions: h.rx,
			Medications:   h.meds,
			Pharmacies:    h.pharmacies,
			Dispensings:   h.dispensing,
			Controlled:    h.logs,
		},
		h.ledger,
		h.checker,
		h.monitor,
		NewAuditService(h.audit, log),
		h.events,
		config.DispensingConfig{CurrentMedicationWindow: 90 * 24 * time.Hour, HistoryLimit: 50},
		nil,
		log,
	)
	h.orch.now = testClock

	return h
}

// seed installs an active prescription for one medication with stock in two
// lots and returns a request for qty units.
func (h *harness) seed(med *domain.Medication, refillsAllowed, qty int) *domain.DispenseRequest {
	h.meds[med.ID] = med
	h.pharmacies["pharm-1"] = &domain.Pharmacy{ID: "pharm-1", Name: "Main Street", DEANumber: ptr("FM1234563"), IsActive: true}
	h.rx.byID["rx-1"] = &domain.Prescription{
		ID:           "rx-1",
		PatientID:    "patient-1",
		PrescriberID: "prescriber-1",
		Status:       domain.PrescriptionActive,
		ValidUntil:   ptr(testNow.AddDate(0, 6, 0)),
		WrittenAt:    daysAgo(3),
		Items: []domain.PrescriptionItem{{
			ID:             "item-1",
			PrescriptionID: "rx-1",
			MedicationName: med.Name,
			RefillsAllowed: refillsAllowed,
			DEASchedule:    med.DEASchedule,
		}},
	}
	h.inventory.add(domain.InventoryLot{
		ID: "lot-a", MedicationID: med.ID, PharmacyID: "pharm-1", LotNumber: "A100",
		Quantity: 20, ExpirationDate: testNow.AddDate(0, 2, 0), ReorderLevel: ptr(5), IsActive: true,
	})
	h.inventory.add(domain.InventoryLot{
		ID: "lot-b", MedicationID: med.ID, PharmacyID: "pharm-1", LotNumber: "B200",
		Quantity: 50, ExpirationDate: testNow.AddDate(1, 0, 0), ReorderLevel: ptr(5), IsActive: true,
	})

	return &domain.DispenseRequest{
		PrescriptionID:     "rx-1",
		PrescriptionItemID: "item-1",
		MedicationID:       med.ID,
		PharmacyID:         "pharm-1",
		PharmacistID:       "pharmacist-1",
		Quantity:           qty,
	}
}

func lisinopril() *domain.Medication {
	return &domain.Medication{ID: "med-lis", Name: "Lisinopril"}
}

func oxycodone() *domain.Medication {
	return &domain.Medication{ID: "med-oxy", Name: "Oxycodone", Controlled: true, DEASchedule: ptr("II")}
}
