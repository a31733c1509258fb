package i18n

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAcceptLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", LocaleEnglish},
		{"de-DE,de;q=0.9,en;q=0.8", LocaleGerman},
		{"en-US,en;q=0.9", LocaleEnglish},
		{"fr-FR", LocaleEnglish},
		{"de-AT", LocaleGerman},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAcceptLanguage(tt.header))
		})
	}
}

func TestLocalizer_T(t *testing.T) {
	en := NewLocalizer(LocaleEnglish)
	assert.Equal(t, "Prescription has expired", en.T("errors.expired"))
	assert.Equal(t, "Medication not found", en.T("errors.not_found", map[string]string{"resource": "Medication"}))
	assert.Equal(t, "errors.unknown_key", en.T("errors.unknown_key"))

	de := NewLocalizer(LocaleGerman)
	assert.Equal(t, "Das Rezept ist abgelaufen", de.T("errors.expired"))

	mismatch := map[string]string{"prescribed": "Lisinopril", "requested": "Metformin"}
	assert.Equal(t, "Prescription item is for Lisinopril, not Metformin", en.T("errors.medication_mismatch", mismatch))
	assert.Equal(t, "Die Rezeptposition lautet auf Lisinopril, nicht auf Metformin", de.T("errors.medication_mismatch", mismatch))

	fallback := NewLocalizer("xx")
	assert.Equal(t, LocaleEnglish, fallback.GetLocale())
}

func TestTFromContext(t *testing.T) {
	ctx := WithLocale(context.Background(), LocaleGerman)
	assert.Equal(t, "Rezeptstatus ist cancelled", TFromContext(ctx, "errors.invalid_state", map[string]string{"status": "cancelled"}))
	assert.Equal(t, LocaleEnglish, GetLocaleFromContext(context.Background()))
}
