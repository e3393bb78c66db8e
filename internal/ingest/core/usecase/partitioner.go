package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"logforge/internal/ingest/core/domain"
	"logforge/internal/ingest/core/ports"
)

type Partitioner struct {
	tenants ports.TenantDirectoryPort
	logger  *slog.Logger
}

func NewPartitioner(tenants ports.TenantDirectoryPort, logger *slog.Logger) *Partitioner {
	return &Partitioner{tenants: tenants, logger: logger.With("component", "partitioner")}
}

// Partition emits one partition per active tenant, keyed "tenant-<index>" in
// ascending tenant ID order. No active tenants yields an empty slice.
func (p *Partitioner) Partition(ctx context.Context) ([]domain.Partition, error) {
	active, err := p.tenants.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	if len(active) == 0 {
		p.logger.Warn("no active tenants, nothing to partition")
		return []domain.Partition{}, nil
	}

	partitions := make([]domain.Partition, 0, len(active))
	for i, t := range active {
		partitions = append(partitions, domain.Partition{
			Key:      fmt.Sprintf("tenant-%d", i),
			TenantID: t.Key(),
		})
	}
	p.logger.Info("partitions computed", "count", len(partitions))
	return partitions, nil
}
