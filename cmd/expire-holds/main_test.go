package main

import (
	"context"
	"errors"
	"testing"

	"github.com/diagnosis/stayhold/internal/notify"
	"github.com/diagnosis/stayhold/internal/service"
)

// ---------- Mocks ----------

type mockSweeper struct {
	res *service.SweepResult
	err error
}

func (m *mockSweeper) Sweep(context.Context) (*service.SweepResult, error) {
	return m.res, m.err
}

func TestSweep(t *testing.T) {
	tests := []struct {
		name    string
		sweeper *mockSweeper
		wantErr bool
	}{
		{name: "clean", sweeper: &mockSweeper{res: &service.SweepResult{Processed: 2, Succeeded: 2}}},
		{
			name: "item failures still succeed",
			sweeper: &mockSweeper{res: &service.SweepResult{
				Processed: 2, Succeeded: 1,
				Failures: []notify.SweepFailure{{BookingID: "bk-1", InvoiceNumber: "ASH-2030-0001", Error: "timeout"}},
			}},
		},
		{name: "candidate list failure", sweeper: &mockSweeper{err: errors.New("connection refused")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sweep(context.Background(), tt.sweeper)
			if (err != nil) != tt.wantErr {
				t.Fatalf("sweep() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
