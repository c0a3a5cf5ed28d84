package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/refbot/backend/internal/crypto"
	"github.com/refbot/backend/internal/model"
)

// utf8BOM makes Excel pick UTF-8 when opening the export.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type exportStore interface {
	ListUsers(ctx context.Context, activeOnly bool) ([]model.User, error)
	CountActiveReferrals(ctx context.Context, referrerID int64) (int, error)
}

// ExportService renders the two operator CSV files: the user roster with
// decrypted contacts, and the token key for spreadsheet substitution.
type ExportService struct {
	store  exportStore
	vault  *TokenVault
	cipher *crypto.Cipher
}

func NewExportService(store exportStore, vault *TokenVault, cipher *crypto.Cipher) *ExportService {
	return &ExportService{store: store, vault: vault, cipher: cipher}
}

func yesNo(v bool) string {
	if v {
		return "Да"
	}
	return "Нет"
}

func (s *ExportService) decryptOptional(v *string) string {
	if v == nil {
		return ""
	}
	return s.cipher.Decrypt(*v).Value
}

// ExportUsers writes the full user roster with decrypted email and phone.
func (s *ExportService) ExportUsers(ctx context.Context) ([]byte, error) {
	users, err := s.store.ListUsers(ctx, false)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)

	header := []string{"telegram_id", "username", "first_name", "email", "phone", "referrer_id", "referral_count", "created_at", "is_subscribed", "is_verified", "is_active"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, u := range users {
		count, err := s.store.CountActiveReferrals(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count referrals for user %d: %w", u.ID, err)
		}
		referrer := ""
		if u.ReferrerID != nil {
			referrer = strconv.FormatInt(*u.ReferrerID, 10)
		}
		firstName := ""
		if u.FirstName != nil {
			firstName = *u.FirstName
		}
		record := []string{
			strconv.FormatInt(u.ID, 10),
			s.decryptOptional(u.Username),
			firstName,
			s.decryptOptional(u.Email),
			s.decryptOptional(u.Phone),
			referrer,
			strconv.Itoa(count),
			u.CreatedAt.Format(time.DateTime),
			yesNo(u.IsSubscribed),
			yesNo(u.IsVerified),
			yesNo(u.IsActive),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportTokenKey writes the token → decrypted value table.
func (s *ExportService) ExportTokenKey(ctx context.Context) ([]byte, error) {
	rows, err := s.vault.KeyRows(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"token", "type", "value"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write([]string{row.Token, string(row.ValueType), row.Value}); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
