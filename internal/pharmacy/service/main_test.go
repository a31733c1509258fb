package service_test

import (
	"context"
	"os"
	"testing"

	"github.com/medflow/medflow-pharmacy/pkg/testutil"
)

func TestMain(m *testing.M) {
	code := m.Run()
	testutil.TerminateContainer(context.Background())
	os.Exit(code)
}
