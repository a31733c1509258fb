package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/medflow/medflow-pharmacy/pkg/httputil"
	"github.com/medflow/medflow-pharmacy/pkg/permissions"
)

// Handlers groups the pharmacy handlers for mounting.
type Handlers struct {
	Dispensing *DispensingHandler
	Inventory  *InventoryHandler
	Safety     *SafetyHandler
	PDMP       *PDMPHandler
}

// Mount registers the pharmacy API under r. Every route requires an actor
// (see httputil.UserContext) holding the route's permission.
func Mount(r chi.Router, h Handlers) {
	can := httputil.RequirePermission

	r.Route("/api/v1/pharmacy", func(r chi.Router) {
		r.With(can(permissions.Dispense)).Post("/dispense", h.Dispensing.Dispense)

		r.Route("/dispensings/{id}", func(r chi.Router) {
			r.With(can(permissions.Read)).Get("/", h.Dispensing.Get)
			r.With(can(permissions.Dispense)).Post("/return", h.Dispensing.Return)
			r.With(can(permissions.Dispense)).Patch("/status", h.Dispensing.UpdateStatus)
		})

		r.Route("/patients/{patientID}", func(r chi.Router) {
			r.Use(can(permissions.Read))
			r.Get("/dispensings", h.Dispensing.PatientHistory)
			r.Get("/current-medications", h.Dispensing.CurrentMedications)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Use(can(permissions.InventoryWrite))
			r.Post("/", h.Inventory.Create)
			r.Patch("/{id}", h.Inventory.Update)
			r.Delete("/{id}", h.Inventory.Deactivate)
		})

		r.Route("/pharmacies/{pharmacyID}", func(r chi.Router) {
			r.Use(can(permissions.Read))
			r.Get("/inventory", h.Inventory.List)
			r.Get("/availability", h.Inventory.Availability)
			r.Get("/reorder", h.Inventory.Reorder)
			r.Get("/expiring", h.Inventory.Expiring)
		})

		r.Route("/safety", func(r chi.Router) {
			r.Use(can(permissions.Read))
			r.Post("/interactions", h.Safety.Interactions)
			r.Post("/allergies", h.Safety.Allergies)
			r.Post("/check", h.Safety.Check)
		})

		r.Route("/pdmp", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(can(permissions.PDMPRead))
				r.Get("/patients/{patientID}/check", h.PDMP.Check)
				r.Get("/patients/{patientID}/history", h.PDMP.History)
				r.Get("/unreported", h.PDMP.Unreported)
				r.Get("/statistics", h.PDMP.Statistics)
			})
			r.Group(func(r chi.Router) {
				r.Use(can(permissions.PDMPReport))
				r.Post("/report", h.PDMP.BulkReport)
				r.Post("/logs/{id}/report", h.PDMP.Report)
			})
		})
	})
}
