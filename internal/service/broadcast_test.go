package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refbot/backend/internal/model"
)

type fakeBroadcastStore struct {
	users       []model.User
	deactivated []int64
	records     []*model.Broadcast
}

func (s *fakeBroadcastStore) ListUsers(_ context.Context, _ bool) ([]model.User, error) {
	return s.users, nil
}

func (s *fakeBroadcastStore) DeactivateUser(_ context.Context, id int64) error {
	s.deactivated = append(s.deactivated, id)
	return nil
}

func (s *fakeBroadcastStore) CreateBroadcast(_ context.Context, b *model.Broadcast) error {
	s.records = append(s.records, b)
	return nil
}

type sentMessage struct {
	chatID  int64
	text    string
	photoID string
}

type fakeSender struct {
	sent    []sentMessage
	failFor map[int64]error
}

func (f *fakeSender) send(chatID int64, text, photoID string) error {
	if err := f.failFor[chatID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, photoID: photoID})
	return nil
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, text string) error {
	return f.send(chatID, text, "")
}

func (f *fakeSender) SendPhoto(_ context.Context, chatID int64, photoID, caption string) error {
	return f.send(chatID, caption, photoID)
}

func TestBroadcastText(t *testing.T) {
	store := &fakeBroadcastStore{users: []model.User{{ID: 1}, {ID: 2}}}
	sender := &fakeSender{}
	svc := NewBroadcastService(store, sender)

	sent, failed, err := svc.Broadcast(context.Background(), "Привет!", "")
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 0, failed)

	require.Len(t, sender.sent, 2)
	for _, m := range sender.sent {
		assert.Equal(t, "Привет!", m.text)
		assert.Empty(t, m.photoID)
	}
	require.Len(t, store.records, 1)
	assert.Equal(t, 2, store.records[0].RecipientsCount)
}

func TestBroadcastPhotoWithCaption(t *testing.T) {
	store := &fakeBroadcastStore{users: []model.User{{ID: 7}}}
	sender := &fakeSender{}
	svc := NewBroadcastService(store, sender)

	sent, failed, err := svc.Broadcast(context.Background(), "Подпись к фото", "file-abc")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 0, failed)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "file-abc", sender.sent[0].photoID)
	assert.Equal(t, "Подпись к фото", sender.sent[0].text)
}

func TestBroadcastDeactivatesBlockedUsers(t *testing.T) {
	store := &fakeBroadcastStore{users: []model.User{{ID: 1}, {ID: 2}, {ID: 3}}}
	sender := &fakeSender{failFor: map[int64]error{
		2: errors.New("forbidden: bot was blocked by the user"),
		3: errors.New("network timeout"),
	}}
	svc := NewBroadcastService(store, sender)

	sent, failed, err := svc.Broadcast(context.Background(), "Привет!", "")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 2, failed)

	// only the blocked user is deactivated, transient failures are not
	assert.Equal(t, []int64{2}, store.deactivated)
}
