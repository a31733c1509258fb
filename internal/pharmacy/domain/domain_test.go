package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestPrescription(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)

	rx := &Prescription{Items: []PrescriptionItem{{ID: "a"}, {ID: "b", RefillsAllowed: 1}}}
	require.NotNil(t, rx.Item("b"))
	assert.Equal(t, 1, rx.Item("b").RefillsAllowed)
	assert.Nil(t, rx.Item("c"))

	// Item returns a pointer into the slice.
	rx.Item("b").RefillsUsed = 1
	assert.Equal(t, 1, rx.Items[1].RefillsUsed)

	assert.False(t, (&Prescription{}).ExpiredAt(now))
	assert.True(t, (&Prescription{ValidUntil: &yesterday}).ExpiredAt(now))
	assert.False(t, (&Prescription{ValidUntil: &tomorrow}).ExpiredAt(now))
}

func TestHasRefillRemaining(t *testing.T) {
	tests := []struct {
		allowed, used int
		want          bool
	}{
		{1, 0, true},
		{1, 1, false},
		{0, 0, false},
		{3, 2, true},
	}
	for _, tt := range tests {
		item := &PrescriptionItem{RefillsAllowed: tt.allowed, RefillsUsed: tt.used}
		assert.Equal(t, tt.want, item.HasRefillRemaining(), "allowed=%d used=%d", tt.allowed, tt.used)
	}
}

func TestMedicationSchedule(t *testing.T) {
	assert.Equal(t, "", (&Medication{}).Schedule())
	assert.Equal(t, "II", (&Medication{Controlled: true, DEASchedule: strPtr("II")}).Schedule())
}

func TestDispensingStatusValid(t *testing.T) {
	assert.True(t, DispensingDispensed.Valid())
	assert.True(t, DispensingReturned.Valid())
	assert.True(t, DispensingCancelled.Valid())
	assert.False(t, DispensingStatus("lost").Valid())
}

func TestSafetySnapshot(t *testing.T) {
	snap := &SafetySnapshot{IsSafe: false, RequiresReview: true}
	v, err := snap.Value()
	require.NoError(t, err)

	var back SafetySnapshot
	require.NoError(t, back.Scan(v))
	assert.Equal(t, *snap, back)

	var fromString SafetySnapshot
	require.NoError(t, fromString.Scan(`{"is_safe": true}`))
	assert.True(t, fromString.IsSafe)

	var nilSnap *SafetySnapshot
	v, err = nilSnap.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.NoError(t, back.Scan(nil))
	assert.Error(t, back.Scan(42))
}

func TestDecrementResult(t *testing.T) {
	var empty *DecrementResult
	assert.Equal(t, "", empty.PrimaryLot())

	r := &DecrementResult{Draws: []LotDraw{
		{LotNumber: "A100", Quantity: 20},
		{LotNumber: "B200", Quantity: 10},
	}}
	assert.Equal(t, "A100", r.PrimaryLot())
	assert.Equal(t, 30, r.Total())
}

func TestAtOrBelowReorder(t *testing.T) {
	assert.False(t, (&InventoryLot{Quantity: 0}).AtOrBelowReorder())
	assert.True(t, (&InventoryLot{Quantity: 5, ReorderLevel: intPtr(5)}).AtOrBelowReorder())
	assert.False(t, (&InventoryLot{Quantity: 6, ReorderLevel: intPtr(5)}).AtOrBelowReorder())
}

func TestSupplyDays(t *testing.T) {
	assert.Equal(t, 30, (&ControlledSubstanceLog{}).SupplyDays(30))
	assert.Equal(t, 30, (&ControlledSubstanceLog{DaysSupply: intPtr(0)}).SupplyDays(30))
	assert.Equal(t, 15, (&ControlledSubstanceLog{DaysSupply: intPtr(15)}).SupplyDays(30))
}

func TestAllergyCritical(t *testing.T) {
	assert.True(t, (&DrugAllergy{ReactionType: strPtr("Anaphylaxis")}).Critical())
	assert.True(t, (&DrugAllergy{Severity: strPtr("SEVERE")}).Critical())
	assert.False(t, (&DrugAllergy{ReactionType: strPtr("rash"), Severity: strPtr("mild")}).Critical())
	assert.False(t, (&DrugAllergy{}).Critical())
}

func TestDispensingLot(t *testing.T) {
	assert.Equal(t, "", (&Dispensing{}).Lot())
	assert.Equal(t, "A100", (&Dispensing{LotNumber: strPtr("A100")}).Lot())
}

func TestDispensingReturnCredits(t *testing.T) {
	d := &Dispensing{
		Quantity: 30,
		Draws: LotDraws{
			{LotID: "lot-a", LotNumber: "A100", Quantity: 20},
			{LotID: "lot-b", LotNumber: "B200", Quantity: 10},
		},
	}

	assert.Equal(t, []LotDraw{
		{LotID: "lot-b", LotNumber: "B200", Quantity: 10},
		{LotID: "lot-a", LotNumber: "A100", Quantity: 20},
	}, d.ReturnCredits(30))

	d.QuantityReturned = 4
	assert.Equal(t, []LotDraw{
		{LotID: "lot-b", LotNumber: "B200", Quantity: 6},
		{LotID: "lot-a", LotNumber: "A100", Quantity: 2},
	}, d.ReturnCredits(8))

	d.QuantityReturned = 12
	assert.Equal(t, []LotDraw{{LotID: "lot-a", LotNumber: "A100", Quantity: 3}}, d.ReturnCredits(3))

	legacy := &Dispensing{Quantity: 10, LotNumber: strPtr("C300")}
	assert.Equal(t, []LotDraw{{LotNumber: "C300", Quantity: 4}}, legacy.ReturnCredits(4))
	assert.Nil(t, (&Dispensing{Quantity: 10}).ReturnCredits(4))
}

func TestLotDrawsValueScan(t *testing.T) {
	draws := LotDraws{{LotID: "lot-a", LotNumber: "A100", Quantity: 20, Remaining: 0}}
	v, err := draws.Value()
	require.NoError(t, err)

	var back LotDraws
	require.NoError(t, back.Scan(v))
	assert.Equal(t, draws, back)

	v, err = LotDraws(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, back.Scan(nil))
	assert.Nil(t, back)
	assert.Error(t, back.Scan(42))
}
