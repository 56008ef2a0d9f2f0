package commission

import (
	"context"
)

// IsEligible: Green ID: есть хотя бы одна инвестиция и хотя бы одна активная
// активность минтинга. Всегда читается заново: активность может закрыться
// посреди того же события.
func IsEligible(ctx context.Context, st Store, userID int64) (bool, error) {
	investments, err := st.CountInvestments(ctx, userID)
	if err != nil {
		return false, err
	}
	if investments == 0 {
		return false, nil
	}
	active, err := st.CountActiveActivities(ctx, userID)
	if err != nil {
		return false, err
	}
	return active > 0, nil
}

func greenID(userID int64) gate {
	return func(ctx context.Context, st Store) (bool, string, error) {
		ok, err := IsEligible(ctx, st, userID)
		if err != nil || !ok {
			return false, NoteNotEligible, err
		}
		return true, "", nil
	}
}
