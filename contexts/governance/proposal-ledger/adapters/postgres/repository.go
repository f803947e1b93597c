package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "govledger/contexts/governance/proposal-ledger/application"
	"govledger/contexts/governance/proposal-ledger/domain/entities"
	domainerrors "govledger/contexts/governance/proposal-ledger/domain/errors"
	"govledger/contexts/governance/proposal-ledger/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

// Repository persists proposals as fixed-size account_data blobs next to a
// few indexed columns used only for listing. account_data is the source of
// truth; the columns are rewritten from it on every mutation.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates or updates the ledger tables.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&proposalModel{}, &idempotencyModel{}, &outboxModel{}); err != nil {
		return r.logError("ledger_repo_migrate_failed", err)
	}
	return nil
}

// CreateProposal inserts the record, its outbox row and its idempotency key
// in one transaction. A key already stored for the same request replays the
// record it created.
func (r *Repository) CreateProposal(
	ctx context.Context,
	proposal entities.Proposal,
	write ports.ProposalWrite,
) (ports.ProposalWriteResult, error) {
	var result ports.ProposalWriteResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored, found, err := storedKey(tx, write)
		if err != nil {
			return err
		}
		if found {
			var row proposalModel
			if err := tx.Where("handle = ?", stored.ProposalID).First(&row).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domainerrors.ErrProposalNotFound
				}
				return err
			}
			replayed, err := row.toEntity()
			if err != nil {
				return err
			}
			result = ports.ProposalWriteResult{Proposal: replayed, Revision: row.Revision, Replayed: true}
			return nil
		}

		event, err := applyWrite(write, &proposal)
		if err != nil {
			return err
		}
		row, err := proposalModelFromEntity(proposal)
		if err != nil {
			return err
		}
		row.Revision = 1
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrProposalExists
			}
			return err
		}
		if err := commitSideRecords(tx, write, event); err != nil {
			return err
		}
		result = ports.ProposalWriteResult{Proposal: proposal, Revision: row.Revision}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return ports.ProposalWriteResult{}, err
		}
		return ports.ProposalWriteResult{}, r.logError("ledger_repo_create_proposal_failed", err,
			"proposal_id", proposal.Handle.String(),
			"author_id", proposal.Author.String(),
		)
	}
	return result, nil
}

func (r *Repository) GetProposal(ctx context.Context, handle entities.Identity) (entities.Proposal, error) {
	var row proposalModel
	err := r.db.WithContext(ctx).
		Where("handle = ?", handle.String()).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Proposal{}, domainerrors.ErrProposalNotFound
		}
		return entities.Proposal{}, r.logError("ledger_repo_get_proposal_failed", err, "proposal_id", handle.String())
	}
	return row.toEntity()
}

func (r *Repository) ListProposals(ctx context.Context, filter ports.ProposalFilter) ([]entities.Proposal, error) {
	tx := r.db.WithContext(ctx).Model(&proposalModel{})
	if filter.Author != nil {
		tx = tx.Where("author_id = ?", filter.Author.String())
	}
	if filter.Subject != nil {
		tx = tx.Where("subject_id = ?", filter.Subject.String())
	}
	if filter.Closed != nil {
		tx = tx.Where("closed = ?", *filter.Closed)
	}
	// Expiration is stored in whole seconds and ends voting at that second.
	if filter.OpenAt != nil {
		tx = tx.Where("expiration_time > ?", filter.OpenAt.UTC().Truncate(time.Second))
	}
	if filter.ExpiredAt != nil {
		tx = tx.Where("expiration_time <= ?", filter.ExpiredAt.UTC().Truncate(time.Second))
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}

	var rows []proposalModel
	if err := tx.Order("created_at ASC").Order("handle ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_proposals_failed", err)
	}
	items := make([]entities.Proposal, 0, len(rows))
	for _, row := range rows {
		proposal, err := row.toEntity()
		if err != nil {
			return nil, r.logError("ledger_repo_decode_proposal_failed", err, "proposal_id", row.Handle)
		}
		items = append(items, proposal)
	}
	return items, nil
}

// UpdateProposal locks the proposal row with SELECT ... FOR UPDATE for the
// duration of the write. Concurrent updates to the same proposal queue on the
// row lock. The outbox row and idempotency key go into the same transaction,
// so a failure anywhere rolls all of them back.
func (r *Repository) UpdateProposal(
	ctx context.Context,
	handle entities.Identity,
	write ports.ProposalWrite,
) (ports.ProposalWriteResult, error) {
	var result ports.ProposalWriteResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row proposalModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("handle = ?", handle.String()).
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrProposalNotFound
			}
			return err
		}

		proposal, err := row.toEntity()
		if err != nil {
			return err
		}
		if _, found, err := storedKey(tx, write); err != nil {
			return err
		} else if found {
			result = ports.ProposalWriteResult{Proposal: proposal, Revision: row.Revision, Replayed: true}
			return nil
		}

		event, err := applyWrite(write, &proposal)
		if err != nil {
			return err
		}
		next, err := proposalModelFromEntity(proposal)
		if err != nil {
			return err
		}
		revision := row.Revision + 1
		if err := tx.Model(&proposalModel{}).
			Where("handle = ?", row.Handle).
			Updates(map[string]any{
				"yes_votes":     next.YesVotes,
				"no_votes":      next.NoVotes,
				"unique_voters": next.UniqueVoters,
				"closed":        next.Closed,
				"outcome":       next.Outcome,
				"account_data":  next.AccountData,
				"revision":      revision,
				"updated_at":    time.Now().UTC(),
			}).Error; err != nil {
			return err
		}
		if err := commitSideRecords(tx, write, event); err != nil {
			return err
		}
		result = ports.ProposalWriteResult{Proposal: proposal, Revision: revision}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return ports.ProposalWriteResult{}, err
		}
		return ports.ProposalWriteResult{}, r.logError("ledger_repo_update_proposal_failed", err, "proposal_id", handle.String())
	}
	return result, nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	record, found, err := loadKey(r.db.WithContext(ctx), key, now)
	if err != nil {
		return ports.IdempotencyRecord{}, false, r.logError("ledger_repo_idempotency_get_failed", err,
			"idempotency_key", strings.TrimSpace(key),
		)
	}
	return record, found, nil
}

// storedKey reports whether write's idempotency key was already committed
// for the same request; a live key with another request hash is a conflict.
func storedKey(tx *gorm.DB, write ports.ProposalWrite) (ports.IdempotencyRecord, bool, error) {
	if write.Idempotency == nil {
		return ports.IdempotencyRecord{}, false, nil
	}
	receivedAt := write.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	record, found, err := loadKey(tx, write.Idempotency.Key, receivedAt)
	if err != nil || !found {
		return ports.IdempotencyRecord{}, false, err
	}
	if record.RequestHash != write.Idempotency.RequestHash {
		return ports.IdempotencyRecord{}, false, domainerrors.ErrIdempotencyConflict
	}
	return record, true, nil
}

// loadKey reads one idempotency key. Expired keys are deleted and read as
// absent.
func loadKey(tx *gorm.DB, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	key = strings.TrimSpace(key)
	var row idempotencyModel
	if err := tx.Where("idempotency_key = ?", key).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, err
	}
	if !row.ExpiresAt.IsZero() && now.UTC().After(row.ExpiresAt.UTC()) {
		if err := tx.Where("idempotency_key = ?", key).Delete(&idempotencyModel{}).Error; err != nil {
			return ports.IdempotencyRecord{}, false, err
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		ProposalID:  row.ProposalID,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

// commitSideRecords inserts the outbox row and the idempotency key inside
// the caller's transaction. The outbox sequence is assigned by the insert,
// which runs under the proposal's row lock.
func commitSideRecords(tx *gorm.DB, write ports.ProposalWrite, event *ports.EventEnvelope) error {
	if write.Idempotency != nil {
		key := idempotencyModel{
			Key:         strings.TrimSpace(write.Idempotency.Key),
			RequestHash: strings.TrimSpace(write.Idempotency.RequestHash),
			ProposalID:  strings.TrimSpace(write.Idempotency.ProposalID),
			ExpiresAt:   write.Idempotency.ExpiresAt.UTC(),
		}
		create := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(&key)
		if create.Error != nil {
			return create.Error
		}
		if create.RowsAffected == 0 {
			return domainerrors.ErrIdempotencyConflict
		}
	}

	if event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(event.EventID),
		EventType:    strings.TrimSpace(event.EventType),
		PartitionKey: strings.TrimSpace(event.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    event.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := tx.Omit("sequence").Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return err
	}
	return nil
}

func applyWrite(write ports.ProposalWrite, proposal *entities.Proposal) (*ports.EventEnvelope, error) {
	if write.Apply == nil {
		return nil, nil
	}
	return write.Apply(proposal)
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("sequence ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("ledger_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			Sequence:     row.Sequence,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("ledger_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", application.ModuleName,
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("ledger repository operation failed", fields...)
	return err
}

type proposalModel struct {
	Handle         string    `gorm:"column:handle;primaryKey;size:64"`
	AuthorID       string    `gorm:"column:author_id;size:64;index"`
	SubjectID      string    `gorm:"column:subject_id;size:64;index"`
	Title          string    `gorm:"column:title;size:100"`
	YesVotes       uint32    `gorm:"column:yes_votes"`
	NoVotes        uint32    `gorm:"column:no_votes"`
	UniqueVoters   uint32    `gorm:"column:unique_voters"`
	Closed         bool      `gorm:"column:closed;index"`
	Outcome        string    `gorm:"column:outcome;size:16"`
	ExpirationTime time.Time `gorm:"column:expiration_time"`
	AccountData    []byte    `gorm:"column:account_data"`
	Revision       uint64    `gorm:"column:revision;not null;default:1"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (proposalModel) TableName() string {
	return "governance_proposals"
}

func proposalModelFromEntity(proposal entities.Proposal) (proposalModel, error) {
	data, err := proposal.MarshalBinary()
	if err != nil {
		return proposalModel{}, err
	}
	return proposalModel{
		Handle:         proposal.Handle.String(),
		AuthorID:       proposal.Author.String(),
		SubjectID:      proposal.Subject.String(),
		Title:          proposal.Title,
		YesVotes:       proposal.YesVotes,
		NoVotes:        proposal.NoVotes,
		UniqueVoters:   proposal.UniqueVoters,
		Closed:         proposal.Closed,
		Outcome:        string(proposal.Outcome),
		ExpirationTime: proposal.ExpirationTime.UTC(),
		AccountData:    data,
		CreatedAt:      proposal.CreatedAt.UTC(),
		UpdatedAt:      proposal.CreatedAt.UTC(),
	}, nil
}

func (m proposalModel) toEntity() (entities.Proposal, error) {
	var proposal entities.Proposal
	if err := proposal.UnmarshalBinary(m.AccountData); err != nil {
		return entities.Proposal{}, err
	}
	return proposal, nil
}

type idempotencyModel struct {
	Key         string    `gorm:"column:idempotency_key;primaryKey;size:128"`
	RequestHash string    `gorm:"column:request_hash;size:64"`
	ProposalID  string    `gorm:"column:proposal_id;size:64"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "governance_ledger_idempotency"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey;size:64"`
	Sequence     int64      `gorm:"column:sequence;autoIncrement;not null;uniqueIndex"`
	EventType    string     `gorm:"column:event_type;size:64"`
	PartitionKey string     `gorm:"column:partition_key;size:64"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;size:16;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "governance_ledger_outbox"
}

// isUniqueViolation recognizes duplicate keys from pgx directly and from any
// dialect opened with gorm's TranslateError.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domainerrors.ErrProposalNotFound,
		domainerrors.ErrProposalClosed,
		domainerrors.ErrProposalExpired,
		domainerrors.ErrAlreadyVotedYes,
		domainerrors.ErrAlreadyVotedNo,
		domainerrors.ErrMaxVotersReached,
		domainerrors.ErrProposalAlreadyClosed,
		domainerrors.ErrUnauthorized,
		domainerrors.ErrOverflow,
		domainerrors.ErrUnderflow,
		domainerrors.ErrInvalidInput,
		domainerrors.ErrCorruptRecord,
		domainerrors.ErrProposalExists,
		domainerrors.ErrIdempotencyConflict,
		domainerrors.ErrConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var _ ports.ProposalRepository = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
