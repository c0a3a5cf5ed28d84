package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/refbot/backend/internal/crypto"
	"github.com/refbot/backend/internal/logger"
	"github.com/refbot/backend/internal/model"
	"github.com/refbot/backend/internal/repository"
)

var ErrMissingColumns = errors.New("csv is missing required columns")

// ImportRow is one normalized record from the CRM export: the student who
// registered and the referrer keys lifted from the tracking parameters.
// The keys are opaque: each may be a vault token, a plaintext email or
// phone, or (primary only) a raw telegram id.
type ImportRow struct {
	Line              int
	StudentEmail      string
	ReferrerPrimary   string
	ReferrerSecondary string
}

// columnAliases maps canonical column names to the header spellings CRM
// exports have been seen to use.
var columnAliases = map[string][]string{
	"email":              {"email", "e_mail", "email_registrant", "mail"},
	"referrer_primary":   {"utm_campaign", "referrer_email", "email_referrer", "referrer_mail"},
	"referrer_secondary": {"utm_content", "referrer_phone", "phone_referrer"},
}

// NormalizeHeader lowercases a column name and folds spaces and hyphens
// to underscores.
func NormalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return name
}

// MapColumns resolves a CSV header to column indexes for the canonical
// set. Missing email or referrer_primary aborts the whole import: the
// mapping is a precondition, not a per-row concern.
func MapColumns(header []string) (map[string]int, error) {
	normalized := make(map[string]int, len(header))
	for i, name := range header {
		normalized[NormalizeHeader(name)] = i
	}

	cols := make(map[string]int)
	for canonical, aliases := range columnAliases {
		for _, alias := range aliases {
			if idx, ok := normalized[alias]; ok {
				cols[canonical] = idx
				break
			}
		}
	}

	if _, ok := cols["email"]; !ok {
		return nil, fmt.Errorf("%w: email", ErrMissingColumns)
	}
	if _, ok := cols["referrer_primary"]; !ok {
		return nil, fmt.Errorf("%w: referrer_primary", ErrMissingColumns)
	}
	return cols, nil
}

// ParseImportCSV reads a CRM export into normalized rows. A UTF-8 BOM on
// the first header cell is stripped.
func ParseImportCSV(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	cols, err := MapColumns(header)
	if err != nil {
		return nil, err
	}

	field := func(record []string, canonical string) string {
		idx, ok := cols[canonical]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var rows []ImportRow
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}
		line++
		rows = append(rows, ImportRow{
			Line:              line,
			StudentEmail:      field(record, "email"),
			ReferrerPrimary:   field(record, "referrer_primary"),
			ReferrerSecondary: field(record, "referrer_secondary"),
		})
	}
	return rows, nil
}

// Notifier delivers user-facing messages. Delivery failure is never fatal
// to a link transaction.
type Notifier interface {
	NotifyGradeAchieved(ctx context.Context, userID int64, grade model.Grade) error
	NotifyReferralConfirmed(ctx context.Context, userID int64, count int) error
}

// NopNotifier drops notifications, for API-only deployments without a bot.
type NopNotifier struct{}

func (NopNotifier) NotifyGradeAchieved(context.Context, int64, model.Grade) error { return nil }
func (NopNotifier) NotifyReferralConfirmed(context.Context, int64, int) error     { return nil }

// attributionStore is the subset of storage the resolver needs.
type attributionStore interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, encryptedEmail string) (*model.User, error)
	GetUserByEmailAndPhone(ctx context.Context, encryptedEmail, encryptedPhone string) (*model.User, error)
	LinkReferral(ctx context.Context, referrerID, referredID int64) error
	CountActiveReferrals(ctx context.Context, referrerID int64) (int, error)
	ListGrades(ctx context.Context) ([]model.Grade, error)
}

// tokenResolver resolves vault tokens back to encrypted values.
type tokenResolver interface {
	Resolve(ctx context.Context, token string) (*model.UtmToken, error)
}

// AttributionService turns CRM registration records into referral edges.
type AttributionService struct {
	store    attributionStore
	tokens   tokenResolver
	cipher   *crypto.Cipher
	notifier Notifier
}

func NewAttributionService(store attributionStore, tokens tokenResolver, cipher *crypto.Cipher, notifier Notifier) *AttributionService {
	return &AttributionService{store: store, tokens: tokens, cipher: cipher, notifier: notifier}
}

// ResolveReferrer finds the referring user behind the row's keys.
// Order matters: vault tokens first, then plaintext email+phone, then a
// numeric telegram id, then plaintext email alone.
func (s *AttributionService) ResolveReferrer(ctx context.Context, row ImportRow) (*model.User, error) {
	primary := strings.TrimSpace(row.ReferrerPrimary)
	secondary := strings.TrimSpace(row.ReferrerSecondary)
	if primary == "" {
		return nil, repository.ErrUserNotFound
	}

	if secondary != "" {
		if byToken := s.resolveByTokens(ctx, primary, secondary); byToken != nil {
			return byToken, nil
		}

		encEmail := s.cipher.Encrypt(NormalizeEmail(primary))
		encPhone := s.cipher.Encrypt(NormalizePhone(secondary))
		if user, err := s.store.GetUserByEmailAndPhone(ctx, encEmail, encPhone); err == nil {
			return user, nil
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
	}

	if id, err := strconv.ParseInt(primary, 10, 64); err == nil {
		if user, err := s.store.GetUser(ctx, id); err == nil {
			return user, nil
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
	}

	user, err := s.store.GetUserByEmail(ctx, s.cipher.Encrypt(NormalizeEmail(primary)))
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AttributionService) resolveByTokens(ctx context.Context, primary, secondary string) *model.User {
	primaryTok, err := s.tokens.Resolve(ctx, primary)
	if err != nil {
		return nil
	}
	secondaryTok, err := s.tokens.Resolve(ctx, secondary)
	if err != nil {
		return nil
	}
	user, err := s.store.GetUserByEmailAndPhone(ctx, primaryTok.EncryptedValue, secondaryTok.EncryptedValue)
	if err != nil {
		return nil
	}
	return user
}

// RowOutcome classifies what happened to one import row.
type RowOutcome int

const (
	OutcomeLinked RowOutcome = iota
	OutcomeAlreadyLinked
	OutcomeDeferred
	OutcomeStudentNotFound
	OutcomeReferrerNotFound
	OutcomeError
)

// ImportSummary is the batch report shown to the admin after a pass.
type ImportSummary struct {
	Total            int
	Linked           int
	AlreadyLinked    int
	Deferred         int
	StudentNotFound  int
	ReferrerNotFound int
	Errors           []string
}

// ProcessRow resolves and links a single record. Not-found conditions and
// guard no-ops are outcomes, not errors; only storage failures are errors.
func (s *AttributionService) ProcessRow(ctx context.Context, row ImportRow) (RowOutcome, error) {
	studentEmail := NormalizeEmail(row.StudentEmail)
	if studentEmail == "" {
		return OutcomeStudentNotFound, nil
	}

	referrer, err := s.ResolveReferrer(ctx, row)
	if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, repository.ErrTokenNotFound) {
		return OutcomeReferrerNotFound, nil
	}
	if err != nil {
		return OutcomeError, err
	}

	student, err := s.store.GetUserByEmail(ctx, s.cipher.Encrypt(studentEmail))
	if errors.Is(err, repository.ErrUserNotFound) {
		return OutcomeStudentNotFound, nil
	}
	if err != nil {
		return OutcomeError, err
	}

	if referrer.ID == student.ID {
		return OutcomeError, fmt.Errorf("user %d referred themselves", student.ID)
	}
	if student.ReferrerID != nil {
		return OutcomeAlreadyLinked, nil
	}
	// the student must pass the subscription gate before the edge counts
	if !student.IsSubscribed {
		return OutcomeDeferred, nil
	}

	err = s.store.LinkReferral(ctx, referrer.ID, student.ID)
	if errors.Is(err, repository.ErrAlreadyLinked) {
		return OutcomeAlreadyLinked, nil
	}
	if err != nil {
		return OutcomeError, err
	}

	s.notifyCrossings(ctx, referrer.ID)
	return OutcomeLinked, nil
}

// notifyCrossings re-reads the referrer's count and reports any grade whose
// threshold it landed on. Send failures are logged and dropped.
func (s *AttributionService) notifyCrossings(ctx context.Context, referrerID int64) {
	count, err := s.store.CountActiveReferrals(ctx, referrerID)
	if err != nil {
		logger.L().Warn("failed to count referrals after link", zap.Int64("referrer_id", referrerID), zap.Error(err))
		return
	}
	grades, err := s.store.ListGrades(ctx)
	if err != nil {
		logger.L().Warn("failed to list grades after link", zap.Int64("referrer_id", referrerID), zap.Error(err))
		return
	}

	crossed := NewlyCrossed(grades, count)
	if len(crossed) == 0 {
		if err := s.notifier.NotifyReferralConfirmed(ctx, referrerID, count); err != nil {
			logger.L().Warn("referral notification failed", zap.Int64("referrer_id", referrerID), zap.Error(err))
		}
		return
	}
	for _, g := range crossed {
		if err := s.notifier.NotifyGradeAchieved(ctx, referrerID, g); err != nil {
			logger.L().Warn("grade notification failed", zap.Int64("referrer_id", referrerID), zap.Int64("grade_id", g.ID), zap.Error(err))
		}
	}
}

// Import runs one batch pass, strictly sequentially. Each row re-reads the
// referrer's count so consecutive rows for the same referrer detect their
// own crossings.
func (s *AttributionService) Import(ctx context.Context, rows []ImportRow) *ImportSummary {
	summary := &ImportSummary{Total: len(rows)}
	for _, row := range rows {
		outcome, err := s.ProcessRow(ctx, row)
		switch outcome {
		case OutcomeLinked:
			summary.Linked++
		case OutcomeAlreadyLinked:
			summary.AlreadyLinked++
		case OutcomeDeferred:
			summary.Deferred++
		case OutcomeStudentNotFound:
			summary.StudentNotFound++
		case OutcomeReferrerNotFound:
			summary.ReferrerNotFound++
		case OutcomeError:
			summary.Errors = append(summary.Errors, fmt.Sprintf("строка %d: %v", row.Line, err))
			logger.L().Error("import row failed", zap.Int("line", row.Line), zap.Error(err))
		}
	}
	return summary
}
