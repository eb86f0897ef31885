package game

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/google/uuid"

	"bananatrade/internal/store"
)

// PurchaseBot debits the bot price from the owner and creates the bot
// with its own independently funded wallet. The player update, the bot
// hash, and the roster entry commit in one write.
func (s *Service) PurchaseBot(ctx context.Context, in PurchaseBotInput) (*Bot, error) {
	kind, ok := ParseBotKind(in.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown bot kind %q", ErrInvalidConfig, in.Kind)
	}

	botID := uuid.NewString()
	bot := &Bot{
		BotID:             botID,
		SessionID:         in.SessionID,
		OwnerPlayerID:     in.PlayerID,
		Kind:              kind,
		DisplayName:       displayNameOr(in.Name, strings.ReplaceAll(kind, "_", " ")+" bot"),
		UsdMicros:         s.rules.BotFundingMicros,
		StartingUsdMicros: s.rules.BotFundingMicros,
		Active:            true,
		BehaviorBps:       behaviorBps(botID),
		CreatedAt:         s.now().UTC(),
	}

	key := gameKey(in.SessionID)
	err := s.store.Apply(ctx, []string{key}, func(view map[string]store.Record) (*store.Mutation, error) {
		sess, err := sessionFromRecord(view[key])
		if err != nil {
			return nil, err
		}
		if sess.State == StateEnded {
			return nil, ErrSessionNotActive
		}
		p := sess.player(in.PlayerID)
		if p == nil {
			return nil, ErrPlayerNotFound
		}
		if p.UsdMicros < s.rules.BotPriceMicros {
			return nil, ErrInsufficientFunds
		}
		p.UsdMicros -= s.rules.BotPriceMicros
		p.Bots = append(p.Bots, BotRef{BotID: bot.BotID, Name: bot.DisplayName, Active: true})
		sess.Version++
		rec, err := sessionRecord(sess)
		if err != nil {
			return nil, err
		}
		mut := store.NewMutation()
		mut.Set[key] = rec
		mut.Set[botKey(in.SessionID, bot.BotID)] = botRecord(bot)
		mut.AddTo[botsKey(in.SessionID)] = []string{bot.BotID}
		return mut, nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	s.log.Info("bot purchased",
		"session_id", in.SessionID,
		"player_id", in.PlayerID,
		"bot_id", bot.BotID,
		"kind", bot.Kind)
	return bot, nil
}

// ToggleBot flips the bot's active flag in both the bot record and the
// owner's roster entry.
func (s *Service) ToggleBot(ctx context.Context, sessionID, playerID, botID string) (*Bot, error) {
	gKey := gameKey(sessionID)
	bKey := botKey(sessionID, botID)
	var out Bot
	err := s.store.Apply(ctx, []string{gKey, bKey}, func(view map[string]store.Record) (*store.Mutation, error) {
		sess, err := sessionFromRecord(view[gKey])
		if err != nil {
			return nil, err
		}
		bot, err := botFromRecord(view[bKey])
		if err != nil {
			return nil, err
		}
		if bot.OwnerPlayerID != playerID {
			return nil, ErrForbidden
		}
		bot.Active = !bot.Active
		p := sess.player(playerID)
		if p == nil {
			return nil, ErrPlayerNotFound
		}
		if ref := p.botRef(botID); ref != nil {
			ref.Active = bot.Active
		}
		sess.Version++
		rec, err := sessionRecord(sess)
		if err != nil {
			return nil, err
		}
		mut := store.NewMutation()
		mut.Set[gKey] = rec
		mut.Set[bKey] = botRecord(bot)
		out = *bot
		return mut, nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return &out, nil
}

// TradeBot executes a buy or sell against the bot's own wallet. The
// owner's balances are never touched and the log entry is tagged with
// the bot actor kind.
func (s *Service) TradeBot(ctx context.Context, in BotTradeInput) (*BotTradeResult, error) {
	if err := validateTrade(in.Direction, in.QuantityUnits); err != nil {
		return nil, err
	}

	quote, stale := s.lookupPrice(ctx, in.SessionID)

	gKey := gameKey(in.SessionID)
	bKey := botKey(in.SessionID, in.BotID)
	var out BotTradeResult
	err := s.store.Apply(ctx, []string{gKey, bKey}, func(view map[string]store.Record) (*store.Mutation, error) {
		sess, err := sessionFromRecord(view[gKey])
		if err != nil {
			return nil, err
		}
		if sess.State != StateStarted {
			return nil, ErrSessionNotActive
		}
		bot, err := botFromRecord(view[bKey])
		if err != nil {
			return nil, err
		}
		if !bot.Active {
			return nil, ErrBotInactive
		}
		px := quote.PriceMicros
		if stale {
			px = sess.Price.PriceMicros
		}
		notional, err := NotionalMicros(in.QuantityUnits, px)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		switch in.Direction {
		case DirectionBuy:
			if bot.UsdMicros < notional {
				return nil, ErrInsufficientFunds
			}
			bot.UsdMicros -= notional
			bot.CoinUnits += in.QuantityUnits
		case DirectionSell:
			if bot.CoinUnits < in.QuantityUnits {
				return nil, ErrInsufficientCoins
			}
			bot.CoinUnits -= in.QuantityUnits
			bot.UsdMicros += notional
		}
		now := s.now().UTC()
		if !stale {
			sess.Price = PriceSnapshot{
				PriceMicros:   px,
				VolatilityBps: quote.VolatilityBps,
				ObservedAt:    now,
			}
		}
		sess.Version++
		rec, err := sessionRecord(sess)
		if err != nil {
			return nil, err
		}
		out = BotTradeResult{
			Transaction: Transaction{
				ActorID:       bot.BotID,
				ActorName:     bot.DisplayName,
				ActorKind:     ActorBot,
				Direction:     in.Direction,
				QuantityUnits: in.QuantityUnits,
				PriceMicros:   px,
				Timestamp:     now,
			},
			UsdMicros:  bot.UsdMicros,
			CoinUnits:  bot.CoinUnits,
			PriceStale: stale,
		}
		raw, err := encodeTransaction(out.Transaction)
		if err != nil {
			return nil, err
		}
		mut := store.NewMutation()
		mut.Set[gKey] = rec
		mut.Set[bKey] = botRecord(bot)
		mut.Append[txnsKey(in.SessionID)] = []string{raw}
		return mut, nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	s.log.Info("bot trade executed",
		"session_id", in.SessionID,
		"bot_id", in.BotID,
		"direction", in.Direction,
		"quantity_units", in.QuantityUnits,
		"price_micros", out.Transaction.PriceMicros)
	return &out, nil
}

func (s *Service) GetBot(ctx context.Context, sessionID, botID string) (*Bot, error) {
	rec, err := s.store.Get(ctx, botKey(sessionID, botID))
	if err != nil {
		return nil, storeErr(err)
	}
	return botFromRecord(rec)
}

// Bots lists the session's bots, optionally restricted to one owner.
func (s *Service) Bots(ctx context.Context, sessionID, ownerID string) ([]*Bot, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	ids, err := s.store.SetMembers(ctx, botsKey(sessionID))
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]*Bot, 0, len(ids))
	for _, id := range ids {
		bot, err := s.GetBot(ctx, sessionID, id)
		if err != nil {
			return nil, err
		}
		if ownerID != "" && bot.OwnerPlayerID != ownerID {
			continue
		}
		out = append(out, bot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// behaviorBps derives a stable per-bot aggression coefficient in the
// 8000..12000 range (0.8x to 1.2x) from the bot ID.
func behaviorBps(botID string) int64 {
	h := fnv.New32a()
	h.Write([]byte(botID))
	return 8000 + int64(h.Sum32()%4001)
}
