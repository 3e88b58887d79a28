package reward

import "context"

type StoreAPI interface {
	InsertReward(ctx context.Context, r Reward) (Reward, error)
	ListRewards(ctx context.Context, filter Filter) ([]Reward, error)
}
