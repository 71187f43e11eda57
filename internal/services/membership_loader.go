package services

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// MembershipLoader схлопывает одновременные запросы членства одного
// пользователя (несколько вкладок подключаются разом) в один запрос к базе.
type MembershipLoader struct {
	store ChatStore
	group singleflight.Group
}

func NewMembershipLoader(store ChatStore) *MembershipLoader {
	return &MembershipLoader{store: store}
}

func (l *MembershipLoader) Load(ctx context.Context, userID uint) ([]uint, error) {
	v, err, _ := l.group.Do(strconv.FormatUint(uint64(userID), 10), func() (interface{}, error) {
		return l.store.ListMemberships(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	ids := v.([]uint)
	// срез общий для всех ожидающих, отдаём копию
	out := make([]uint, len(ids))
	copy(out, ids)
	return out, nil
}
