package proposalledger

import (
	"log/slog"
	"time"

	httpadapter "govledger/contexts/governance/proposal-ledger/adapters/http"
	"govledger/contexts/governance/proposal-ledger/adapters/memory"
	"govledger/contexts/governance/proposal-ledger/application/commands"
	"govledger/contexts/governance/proposal-ledger/application/queries"
	"govledger/contexts/governance/proposal-ledger/application/workers"
	"govledger/contexts/governance/proposal-ledger/domain/entities"
	"govledger/contexts/governance/proposal-ledger/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Proposals      ports.ProposalRepository
	Idempotency    ports.IdempotencyStore
	Cache          ports.ProposalCache
	CacheTTL       time.Duration
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	Durations      commands.DurationPolicy
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	proposalUseCase := commands.ProposalUseCase{
		Proposals:      deps.Proposals,
		Idempotency:    deps.Idempotency,
		Cache:          deps.Cache,
		CacheTTL:       deps.CacheTTL,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		Durations:      deps.Durations,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	queryUseCase := queries.ProposalQueryUseCase{
		Proposals: deps.Proposals,
		Cache:     deps.Cache,
		CacheTTL:  deps.CacheTTL,
		Clock:     deps.Clock,
		Logger:    deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Proposals: proposalUseCase,
			Queries:   queryUseCase,
			Logger:    deps.Logger,
		},
	}
}

// NewInMemoryModule wires the module to one in-process fixed-slot store that
// also serves as idempotency store, clock and id generator.
func NewInMemoryModule(seed []entities.Proposal, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Proposals:      store,
		Idempotency:    store,
		Clock:          store,
		IDGen:          store,
		Durations:      commands.DefaultDurationPolicy(),
		IdempotencyTTL: 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}

// NewOutboxRelay builds the relay worker over any outbox repository.
func NewOutboxRelay(
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	clock ports.Clock,
	batchSize int,
	logger *slog.Logger,
) workers.OutboxRelay {
	return workers.OutboxRelay{
		Outbox:    outbox,
		Publisher: publisher,
		Clock:     clock,
		BatchSize: batchSize,
		Logger:    logger,
	}
}
