package repository

// Migrations returns the idempotent DDL for the pharmacy schema in apply order.
func Migrations() []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

		`CREATE TABLE IF NOT EXISTS pharmacies (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			dea_number VARCHAR(20),
			ncpdp_id VARCHAR(20),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS medications (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(255) NOT NULL,
			generic_name VARCHAR(255),
			is_controlled BOOLEAN NOT NULL DEFAULT FALSE,
			dea_schedule VARCHAR(5),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS prescriptions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			patient_id UUID NOT NULL,
			prescriber_id UUID NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			valid_until TIMESTAMPTZ,
			written_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS prescription_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			prescription_id UUID NOT NULL REFERENCES prescriptions(id) ON DELETE CASCADE,
			medication_name VARCHAR(255) NOT NULL,
			refills_allowed INT NOT NULL DEFAULT 0 CHECK (refills_allowed >= 0),
			refills_used INT NOT NULL DEFAULT 0 CHECK (refills_used >= 0),
			dea_schedule VARCHAR(5),
			CONSTRAINT prescription_items_refills_within_allowed CHECK (refills_used <= refills_allowed)
		)`,

		`CREATE TABLE IF NOT EXISTS inventory_lots (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			medication_id UUID NOT NULL REFERENCES medications(id),
			pharmacy_id UUID NOT NULL REFERENCES pharmacies(id),
			lot_number VARCHAR(100) NOT NULL,
			quantity_on_hand INT NOT NULL DEFAULT 0,
			expiration_date DATE NOT NULL,
			reorder_level INT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT inventory_lots_quantity_non_negative CHECK (quantity_on_hand >= 0),
			CONSTRAINT uq_inventory_lot UNIQUE (medication_id, pharmacy_id, lot_number)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_inventory_lots_fefo
			ON inventory_lots (medication_id, pharmacy_id, expiration_date)
			WHERE is_active = TRUE`,

		`CREATE TABLE IF NOT EXISTS dispensings (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			prescription_id UUID NOT NULL,
			prescription_item_id UUID NOT NULL,
			medication_id UUID NOT NULL,
			medication_name VARCHAR(255) NOT NULL,
			patient_id UUID NOT NULL,
			pharmacy_id UUID NOT NULL,
			pharmacist_id UUID NOT NULL,
			quantity_dispensed INT NOT NULL CHECK (quantity_dispensed > 0),
			quantity_returned INT NOT NULL DEFAULT 0 CHECK (quantity_returned >= 0),
			lot_number VARCHAR(100),
			refill_number INT NOT NULL DEFAULT 0,
			days_supply INT,
			status VARCHAR(20) NOT NULL DEFAULT 'dispensed',
			safety_check JSONB,
			notes TEXT,
			dispensed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT dispensings_status_valid CHECK (status IN ('dispensed', 'returned', 'cancelled')),
			CONSTRAINT dispensings_return_within_dispensed CHECK (quantity_returned <= quantity_dispensed)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_dispensings_patient
			ON dispensings (patient_id, dispensed_at DESC)`,

		`ALTER TABLE dispensings ADD COLUMN IF NOT EXISTS lot_draws JSONB`,

		`CREATE TABLE IF NOT EXISTS controlled_substance_logs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			dispensing_id UUID NOT NULL REFERENCES dispensings(id),
			patient_id UUID NOT NULL,
			prescriber_id UUID NOT NULL,
			pharmacist_id UUID NOT NULL,
			pharmacy_id UUID NOT NULL,
			pharmacy_dea_number VARCHAR(20),
			medication_name VARCHAR(255) NOT NULL,
			dea_schedule VARCHAR(5) NOT NULL,
			quantity INT NOT NULL,
			days_supply INT,
			dispense_date TIMESTAMPTZ NOT NULL,
			prescription_date TIMESTAMPTZ NOT NULL,
			refill_number INT NOT NULL DEFAULT 0,
			reported_to_pdmp BOOLEAN NOT NULL DEFAULT FALSE,
			reported_at TIMESTAMPTZ,
			report_id VARCHAR(100),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT uq_controlled_substance_logs_report_id UNIQUE (report_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_cs_logs_patient_date
			ON controlled_substance_logs (patient_id, dispense_date DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_cs_logs_unreported
			ON controlled_substance_logs (dispense_date)
			WHERE reported_to_pdmp = FALSE`,

		`CREATE TABLE IF NOT EXISTS drug_interactions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			drug1 VARCHAR(255) NOT NULL,
			drug2 VARCHAR(255) NOT NULL,
			severity VARCHAR(20) NOT NULL,
			description TEXT NOT NULL,
			recommendation TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS drug_allergies (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			patient_id UUID NOT NULL,
			allergen VARCHAR(255) NOT NULL,
			reaction_type VARCHAR(50),
			severity VARCHAR(20),
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,

		`CREATE TABLE IF NOT EXISTS audit_trail (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			entity_type VARCHAR(50) NOT NULL,
			entity_id VARCHAR(100) NOT NULL,
			action VARCHAR(50) NOT NULL,
			metadata JSONB,
			performed_by VARCHAR(100),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_audit_trail_entity
			ON audit_trail (entity_type, entity_id, created_at DESC)`,
	}
}
