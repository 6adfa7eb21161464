package quote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/krobus00/sj-trading/internal/constant"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	nightSessionStartHour = 15
	tickPublishTimeout    = 500 * time.Millisecond
)

type TickPublisher interface {
	PublishTick(ctx context.Context, tick entity.Tick) error
}

// Manager buffers streamed ticks per market and fans them out to listeners.
type Manager struct {
	api       entity.QuoteAPI
	publisher TickPublisher
	now       func() time.Time

	mu         sync.Mutex
	buffers    map[entity.Market][]entity.Tick
	frames     map[entity.Market][]entity.Tick
	subscribed map[entity.Market]map[string]entity.Contract
	listeners  []func(entity.Tick)
}

func NewManager(api entity.QuoteAPI) *Manager {
	m := &Manager{
		api:        api,
		now:        time.Now,
		buffers:    make(map[entity.Market][]entity.Tick),
		frames:     make(map[entity.Market][]entity.Tick),
		subscribed: make(map[entity.Market]map[string]entity.Contract),
	}
	api.SetTickHandler(m.onTick)
	return m
}

func (m *Manager) SetPublisher(publisher TickPublisher) {
	m.mu.Lock()
	m.publisher = publisher
	m.mu.Unlock()
}

func (m *Manager) AddTickListener(fn func(entity.Tick)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Contract returns the contract behind code. Continuous symbols such as TXFR1 resolve to
// the delivery month contract, whose code is the one carried by live ticks.
func (m *Manager) Contract(ctx context.Context, securityType entity.SecurityType, code string) (*entity.Contract, error) {
	m.mu.Lock()
	contract, ok := m.subscribed[securityType.Market()][code]
	m.mu.Unlock()
	if ok {
		return &contract, nil
	}

	return m.api.Contract(ctx, securityType, code)
}

// Subscribe starts the tick stream for every code not yet subscribed. With recover set,
// history older than the first live tick is prepended to the frame.
func (m *Manager) Subscribe(ctx context.Context, codes []string, securityType entity.SecurityType, recover bool) error {
	market := securityType.Market()

	for _, code := range codes {
		if m.isSubscribed(market, code) {
			continue
		}

		contract, err := m.api.Contract(ctx, securityType, code)
		if err != nil {
			return fmt.Errorf("resolve contract %s: %w", code, err)
		}
		if contract == nil {
			logrus.WithFields(logrus.Fields{"code": code, "security_type": securityType}).Warn("contract not found, skipping subscription")
			continue
		}

		if err := m.api.Subscribe(ctx, *contract); err != nil {
			return fmt.Errorf("subscribe %s: %w", code, err)
		}

		m.mu.Lock()
		if m.subscribed[market] == nil {
			m.subscribed[market] = make(map[string]entity.Contract)
		}
		m.subscribed[market][code] = *contract
		m.mu.Unlock()

		logrus.WithFields(logrus.Fields{"code": code, "market": market}).Info("subscribed tick stream")

		if !recover {
			continue
		}

		history, err := m.FetchTicks(ctx, *contract, "")
		if err != nil {
			logrus.WithField("code", code).Errorf("failed to recover ticks: %v", err)
			continue
		}
		m.recoverHistory(market, contract.Code, history)
	}

	return nil
}

func (m *Manager) Unsubscribe(ctx context.Context, codes []string, securityType entity.SecurityType) error {
	market := securityType.Market()

	for _, code := range codes {
		m.mu.Lock()
		contract, ok := m.subscribed[market][code]
		if ok {
			delete(m.subscribed[market], code)
		}
		m.mu.Unlock()
		if !ok {
			continue
		}

		if err := m.api.Unsubscribe(ctx, contract); err != nil {
			return fmt.Errorf("unsubscribe %s: %w", code, err)
		}
		logrus.WithFields(logrus.Fields{"code": code, "market": market}).Info("unsubscribed tick stream")
	}

	return nil
}

func (m *Manager) UnsubscribeAll(ctx context.Context) error {
	m.mu.Lock()
	pending := make(map[entity.Market][]string)
	for market, contracts := range m.subscribed {
		for code := range contracts {
			pending[market] = append(pending[market], code)
		}
	}
	m.mu.Unlock()

	for market, codes := range pending {
		securityType := entity.SecurityTypeStock
		if market == entity.MarketFOP {
			securityType = entity.SecurityTypeFuture
		}
		if err := m.Unsubscribe(ctx, codes, securityType); err != nil {
			return err
		}
	}

	return nil
}

// Frame drains the pending buffer of the market and returns a copy of the accumulated ticks.
func (m *Manager) Frame(market entity.Market) []entity.Tick {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pending := m.buffers[market]; len(pending) > 0 {
		m.frames[market] = append(m.frames[market], pending...)
		m.buffers[market] = nil
	}

	frame := make([]entity.Tick, len(m.frames[market]))
	copy(frame, m.frames[market])
	return frame
}

// FetchTicks loads the ticks of date (today when empty). After 15:00 the night session
// of today is merged in when the requested day has no ticks past 15:00.
func (m *Manager) FetchTicks(ctx context.Context, contract entity.Contract, date string) ([]entity.Tick, error) {
	now := m.now()
	today := now.Format(constant.TickDateLayout)
	if date == "" {
		date = today
	}

	ticks, err := m.api.Ticks(ctx, contract, date)
	if err != nil {
		return nil, err
	}

	nightStart := time.Date(now.Year(), now.Month(), now.Day(), nightSessionStartHour, 0, 0, 0, now.Location())
	endsBeforeNight := len(ticks) == 0 || ticks[len(ticks)-1].Datetime.Before(nightStart)
	if !now.Before(nightStart) && endsBeforeNight && date != today {
		night, err := m.api.Ticks(ctx, contract, today)
		if err != nil {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{"code": contract.Code, "ticks": len(night)}).Info("merged night session ticks")
		ticks = append(ticks, night...)
	}

	return dedupeTicks(ticks), nil
}

// KBars aggregates the market frame into OHLCV bars of the given unit.
func (m *Manager) KBars(market entity.Market, unit time.Duration) []entity.KBar {
	return aggregateKBars(m.Frame(market), unit)
}

func (m *Manager) onTick(tick entity.Tick) {
	metrics.TicksTotal.WithLabelValues(tick.Code).Inc()

	m.mu.Lock()
	market := m.marketOfLocked(tick)
	m.buffers[market] = append(m.buffers[market], tick)
	listeners := make([]func(entity.Tick), len(m.listeners))
	copy(listeners, m.listeners)
	publisher := m.publisher
	m.mu.Unlock()

	for _, listener := range listeners {
		listener(tick)
	}

	if publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tickPublishTimeout)
		defer cancel()
		if err := publisher.PublishTick(ctx, tick); err != nil {
			logrus.WithField("code", tick.Code).Warnf("failed to publish tick: %v", err)
		}
	}
}

func (m *Manager) marketOfLocked(tick entity.Tick) entity.Market {
	if tick.SecurityType != "" {
		return tick.SecurityType.Market()
	}
	for market, contracts := range m.subscribed {
		if _, ok := contracts[tick.Code]; ok {
			return market
		}
		for _, contract := range contracts {
			if contract.Code == tick.Code {
				return market
			}
		}
	}
	return entity.MarketStock
}

func (m *Manager) isSubscribed(market entity.Market, code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.subscribed[market][code]
	return ok
}

// recoverHistory keeps history strictly older than the first live tick of code and puts it ahead
// of the live ticks. code is the contract code carried by live ticks.
func (m *Manager) recoverHistory(market entity.Market, code string, history []entity.Tick) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstLive *time.Time
	for _, tick := range m.buffers[market] {
		if tick.Code == code {
			firstLive = &tick.Datetime
			break
		}
	}

	kept := make([]entity.Tick, 0, len(history))
	for _, tick := range history {
		if firstLive != nil && !tick.Datetime.Before(*firstLive) {
			continue
		}
		tick.Code = code
		kept = append(kept, tick)
	}

	m.frames[market] = append(m.frames[market], kept...)
	sort.SliceStable(m.frames[market], func(i, j int) bool {
		return m.frames[market][i].Datetime.Before(m.frames[market][j].Datetime)
	})

	logrus.WithFields(logrus.Fields{"code": code, "recovered": len(kept)}).Info("recovered tick history")
}

func dedupeTicks(ticks []entity.Tick) []entity.Tick {
	seen := make(map[int64]struct{}, len(ticks))
	result := make([]entity.Tick, 0, len(ticks))
	for _, tick := range ticks {
		key := tick.Datetime.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, tick)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Datetime.Before(result[j].Datetime)
	})
	return result
}

// bucketStart truncates t in its own location, so daily bars open at local midnight.
func bucketStart(t time.Time, unit time.Duration) time.Time {
	_, offset := t.Zone()
	shift := time.Duration(offset) * time.Second
	return t.Add(shift).Truncate(unit).Add(-shift)
}

func aggregateKBars(frame []entity.Tick, unit time.Duration) []entity.KBar {
	if unit <= 0 {
		unit = time.Minute
	}

	type bucketKey struct {
		bucket time.Time
		code   string
	}

	index := make(map[bucketKey]int)
	bars := make([]entity.KBar, 0)
	for _, tick := range frame {
		key := bucketKey{bucket: bucketStart(tick.Datetime, unit), code: tick.Code}
		i, ok := index[key]
		if !ok {
			index[key] = len(bars)
			bars = append(bars, entity.KBar{
				Time:   key.bucket,
				Code:   tick.Code,
				Open:   tick.Close,
				High:   tick.Close,
				Low:    tick.Close,
				Close:  tick.Close,
				Volume: tick.Volume,
			})
			continue
		}

		bar := &bars[i]
		if tick.Close.GreaterThan(bar.High) {
			bar.High = tick.Close
		}
		if tick.Close.LessThan(bar.Low) {
			bar.Low = tick.Close
		}
		bar.Close = tick.Close
		bar.Volume += tick.Volume
	}

	sort.SliceStable(bars, func(i, j int) bool {
		if !bars[i].Time.Equal(bars[j].Time) {
			return bars[i].Time.Before(bars[j].Time)
		}
		return bars[i].Code < bars[j].Code
	})
	return bars
}
