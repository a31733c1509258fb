package domain

import "time"

// PDMPResult is the analysis of a patient's controlled substance history.
type PDMPResult struct {
	PatientID                  string                   `json:"patient_id"`
	HasAlerts                  bool                     `json:"has_alerts"`
	Alerts                     []string                 `json:"alerts"`
	RequiresIntervention       bool                     `json:"requires_intervention"`
	MultipleProviders          bool                     `json:"multiple_providers"`
	ProviderCount              int                      `json:"provider_count"`
	MultiplePharmacies         bool                     `json:"multiple_pharmacies"`
	PharmacyCount              int                      `json:"pharmacy_count"`
	OverlappingPrescriptions   bool                     `json:"overlapping_prescriptions"`
	EarlyRefills               []EarlyRefill            `json:"early_refills"`
	HighDoseOpioid             bool                     `json:"high_dose_opioid"`
	ConcurrentOpioidBenzo      bool                     `json:"concurrent_opioid_benzo"`
	RecentControlledSubstances []ControlledSubstanceLog `json:"recent_controlled_substances"`
	CheckedAt                  time.Time                `json:"checked_at"`
}

// EarlyRefill records a Schedule II fill ahead of the expected refill date.
type EarlyRefill struct {
	MedicationName string    `json:"medication_name"`
	DispenseDate   time.Time `json:"dispense_date"`
	ExpectedDate   time.Time `json:"expected_date"`
	DaysEarly      int       `json:"days_early"`
}

// ReportResult is the outcome of reporting one log entry.
type ReportResult struct {
	LogID    string `json:"log_id"`
	Success  bool   `json:"success"`
	ReportID string `json:"report_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BulkReportResult aggregates a bulk report run.
type BulkReportResult struct {
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Results    []ReportResult `json:"results"`
}

// PDMPStatistics summarises controlled substance logging over a period.
type PDMPStatistics struct {
	TotalDispensings int     `json:"total_dispensings"`
	ScheduleII       int     `json:"schedule_ii"`
	ScheduleIII      int     `json:"schedule_iii"`
	ScheduleIV       int     `json:"schedule_iv"`
	ScheduleV        int     `json:"schedule_v"`
	Reported         int     `json:"reported"`
	Unreported       int     `json:"unreported"`
	ReportingRate    float64 `json:"reporting_rate"`
}
