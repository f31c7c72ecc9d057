// Prior Bar High breakout strategy.
//
// A bar-synchronous state machine: each bar is processed to completion
// (fill reactions, session bookkeeping, level computation, order
// submission, stop migration) before the next bar is presented. One
// instance owns one instrument's state; instances share nothing.

package strategies

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pbh-backtest/services/engine"
)

const initialEquity = 100000

// levelSet holds the per-side entry/stop/target estimates derived from
// the current breakout range. Zero take-profit prices mean the ladder is
// gated out for this range.
type levelSet struct {
	valid      bool
	rangeHigh  float64
	rangeLow   float64
	longEntry  float64
	longStop   float64
	shortEntry float64
	shortStop  float64
	longTPs    [engine.MaxTakeProfitLegs]float64
	shortTPs   [engine.MaxTakeProfitLegs]float64
}

// dailyState is reset exactly once per day, on the first bar entering
// the first-bar window after a non-first-bar bar.
type dailyState struct {
	entriesPlaced int
	minRatio      float64 // running minimum entry-candle ADR ratio
	minRatioSet   bool
	blocked       bool // end-of-day / entry-cap block
}

// RunResult is everything one backtest run produces.
type RunResult struct {
	Symbol  string
	Trades  []TradeRecord
	Equity  []EquityPoint
	Summary Summary
	Events  []engine.Event
}

// PBHStrategy is the per-instrument signal and order-management state
// machine. It owns all position state exclusively; the broker only
// executes and reports.
type PBHStrategy struct {
	cfg    PBHConfig
	cal    *engine.SessionCalendar
	broker engine.Broker
	sizer  engine.RiskSizer
	logger *zap.Logger
	events engine.EventLog

	hist   *engine.History
	adr    *engine.ADRTracker
	volSMA *engine.VolumeSMA
	upVol  *engine.UpCloseVolumeTracker

	barIndex int
	lastTs   int64
	lastBar  engine.Bar

	curDayKey string
	dayHigh   float64
	dayLow    float64

	prevFlags engine.SessionFlags
	day       dailyState
	insideRun int
	levels    levelSet

	pendingLong  *engine.PendingEntry
	pendingShort *engine.PendingEntry
	positions    []*engine.OpenPosition
	stopIDs      map[uint64]engine.OrderID
	groupSeq     uint64

	realized    float64
	peakEquity  float64
	maxDrawdown float64

	trades []TradeRecord
	equity []EquityPoint

	entriesPlacedAll int
	entriesFilled    int
	flattens         int
	rejects          int
	skippedBars      int
}

// NewPBHStrategy validates the configuration and builds a fresh state
// machine. Invalid configs are refused here, never at bar time.
func NewPBHStrategy(cfg PBHConfig, broker engine.Broker, logger *zap.Logger) (*PBHStrategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pbh config: %w", err)
	}
	cal, err := engine.NewSessionCalendar(cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("pbh session calendar: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	weeks := cfg.UpVolRollingWeeks
	if weeks < 1 {
		weeks = 1
	}
	return &PBHStrategy{
		cfg:        cfg,
		cal:        cal,
		broker:     broker,
		sizer:      engine.RiskSizer{FirstTradeRisk: cfg.RiskFirstTrade, NextTradeRisk: cfg.RiskNextTrades},
		logger:     logger,
		hist:       engine.NewHistory(8),
		adr:        engine.NewADRTracker(cfg.ADRPeriod),
		volSMA:     engine.NewVolumeSMA(cfg.VolMAPeriod),
		upVol:      engine.NewUpCloseVolumeTracker(int64(weeks) * 7 * 24 * 3600 * 1000),
		barIndex:   -1,
		stopIDs:    make(map[uint64]engine.OrderID),
		peakEquity: initialEquity,
	}, nil
}

// Run replays a full bar series and returns the closed trades, equity
// curve, and summary. Deterministic: the same bars and config always
// produce identical results.
func (s *PBHStrategy) Run(bars []engine.Bar) (*RunResult, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars to process")
	}
	sim, ok := s.broker.(*engine.SimBroker)
	if !ok {
		return nil, fmt.Errorf("Run requires a SimBroker; live brokers deliver fills externally")
	}
	for _, bar := range bars {
		if err := engine.ValidateBar(bar, s.lastTs); err != nil {
			s.skippedBars++
			s.logger.Warn("rejected bar at feed boundary", zap.Int64("ts", bar.Timestamp), zap.Error(err))
			continue
		}
		s.barIndex++
		for _, f := range sim.ProcessBar(s.barIndex, bar) {
			s.OnFill(f, bar)
		}
		s.OnBar(bar)
	}
	s.CloseAll("EndOfData")
	res := &RunResult{
		Symbol: s.cfg.Symbol,
		Trades: s.trades,
		Equity: s.equity,
		Events: s.events.Events,
	}
	res.Summary = Summarize(s.trades, decimal.NewFromFloat(s.maxDrawdown))
	res.Summary.EntriesPlacedTotal = s.entriesPlacedAll
	res.Summary.EntriesFilledTotal = s.entriesFilled
	res.Summary.ForcedFlattenCount = s.flattens
	res.Summary.RejectedOrderCount = s.rejects
	return res, nil
}

// OnBar runs the per-bar decision algorithm. Fills for this bar must be
// delivered through OnFill before OnBar is called.
func (s *PBHStrategy) OnBar(bar engine.Bar) {
	flags := s.cal.Classify(bar.Timestamp)

	// Day rollover for the ADR window: push the completed day's range.
	key := s.cal.DayKey(bar.Timestamp)
	if key != s.curDayKey {
		if s.curDayKey != "" {
			s.adr.PushDay(s.dayHigh, s.dayLow)
		}
		s.curDayKey = key
		s.dayHigh = bar.High
		s.dayLow = bar.Low
	} else {
		s.dayHigh = math.Max(s.dayHigh, bar.High)
		s.dayLow = math.Min(s.dayLow, bar.Low)
	}

	// 1. Inside-bar run length.
	prev, havePrev := s.hist.Previous(0)
	if havePrev && engine.IsInsideBar(bar, prev) {
		s.insideRun++
	} else {
		s.insideRun = 0
	}

	// 2. ADR-relative range measures. Undefined values fail their gates
	// rather than propagating NaN into order prices.
	adrPct, adrOK := s.adr.ADRPercent()
	rangePct, rngOK := bar.RangePercent()
	rangeValid := adrOK && rngOK && adrPct > 0 && rangePct > s.cfg.ADRMultiplier*adrPct
	ratio := 0.0
	ratioOK := false
	if adrOK && adrPct > 0 && rngOK {
		ratio = rangePct / adrPct * 100
		ratioOK = true
	}

	// 3. Track the day's minimum entry-candle ADR ratio during entry
	// windows, ignoring inside bars.
	if flags.InAnyEntryWindow() && ratioOK && s.insideRun == 0 {
		if !s.day.minRatioSet || ratio < s.day.minRatio {
			s.day.minRatio = ratio
			s.day.minRatioSet = true
		}
	}

	// 4. Volume and candle gates. The volume SMA includes the current
	// bar, matching the charting-platform convention.
	s.volSMA.Push(bar.Volume)
	rvol, rvolOK := s.volSMA.RelativeVolume(bar.Volume)
	volGate := rvolOK && rvol > s.cfg.RVOL && bar.Volume > s.cfg.MinAbsVolume
	candleGate := false
	if havePrev && prev.Close > 0 {
		candleGate = math.Abs(bar.Close/prev.Close-1)*100 >= s.cfg.MinCandlePerc
	}
	newAllTime, newRolling := s.upVol.Observe(bar)
	upGate := (!s.cfg.RequireNewMaxUpVolEver || newAllTime) &&
		(!s.cfg.RequireNewMaxUpVolRolling || newRolling)

	// 5. Session bookkeeping.
	if flags.FirstBar && !s.prevFlags.FirstBar {
		s.dailyReset(bar)
	}
	if s.cfg.UseEOD && (flags.LastBar || flags.HalfDayClose) {
		if len(s.positions) > 0 || s.hasPending() {
			s.flattenAll(bar, "EndOfDay")
		}
		s.day.blocked = true
	}
	if s.day.entriesPlaced >= s.cfg.MaxEntryCount {
		s.cancelPendings(bar, "daily entry cap")
		s.day.blocked = true
	}
	if !flags.InAnyEntryWindow() {
		s.cancelPendings(bar, "outside entry window")
	}

	// 6. Pending-order aging.
	s.agePendings(bar)

	// 7. Level computation. Run count of exactly one freezes the prior
	// level set; this mirrors the reference behavior and is deliberate.
	if !s.day.blocked && len(s.positions) < s.cfg.PyramidingCount {
		switch {
		case s.insideRun >= 2:
			if anchor, ok := s.hist.Previous(1); ok {
				s.computeLevels(anchor.High, anchor.Low, ratio, ratioOK)
			}
		case s.insideRun == 0 || flags.FirstBar:
			s.computeLevels(bar.High, bar.Low, ratio, ratioOK)
		}
	}

	// 10. Entry decisions. (Move-stop trigger/target levels, step 9,
	// are fixed from the actual entry fill and its attached stop.)
	structural := s.insideRun == 0 || flags.FirstBar || s.insideRun >= 2
	gates := rangeValid && volGate && candleGate && upGate
	canEnter := structural && gates && !s.day.blocked && s.levels.valid &&
		flags.InAnyEntryWindow() &&
		s.day.entriesPlaced < s.cfg.MaxEntryCount &&
		len(s.positions) < s.cfg.PyramidingCount
	if canEnter {
		if s.cfg.TakeLong && s.pendingLong == nil {
			s.submitEntry(bar, engine.SideLong)
		}
		if s.cfg.TakeShort && s.pendingShort == nil {
			s.submitEntry(bar, engine.SideShort)
		}
	}

	// 11. Move-stop activation, at most once per position.
	if s.cfg.UseMS {
		for _, pos := range s.positions {
			s.maybeMigrateStop(bar, pos)
		}
	}

	s.hist.Push(bar)
	s.lastTs = bar.Timestamp
	s.lastBar = bar
	s.prevFlags = flags
	s.recordEquity(bar)
}

// dailyReset clears the daily counters and cancels entry orders held
// over the session boundary. Protective stops on carried positions are
// left in place so no open position ever loses its stop coverage.
func (s *PBHStrategy) dailyReset(bar engine.Bar) {
	s.cancelPendings(bar, "daily reset")
	s.day = dailyState{}
	s.events.Append(engine.Event{Ts: bar.Timestamp, Type: engine.EventDailyReset, Symbol: s.cfg.Symbol})
}

func (s *PBHStrategy) hasPending() bool {
	return s.pendingLong != nil || s.pendingShort != nil
}

func (s *PBHStrategy) cancelPendings(bar engine.Bar, reason string) {
	for _, p := range []**engine.PendingEntry{&s.pendingLong, &s.pendingShort} {
		if *p == nil {
			continue
		}
		_ = s.broker.Cancel((*p).OrderID)
		s.events.Append(engine.Event{
			Ts: bar.Timestamp, Type: engine.EventOrderCancel, Symbol: s.cfg.Symbol,
			OrderID: (*p).OrderID, Kind: engine.KindStopEntry, Detail: reason,
		})
		*p = nil
	}
}

func (s *PBHStrategy) agePendings(bar engine.Bar) {
	for _, p := range []**engine.PendingEntry{&s.pendingLong, &s.pendingShort} {
		if *p == nil {
			continue
		}
		(*p).Age++
		if (*p).Age > s.cfg.PendingBarCount {
			_ = s.broker.Cancel((*p).OrderID)
			s.events.Append(engine.Event{
				Ts: bar.Timestamp, Type: engine.EventOrderCancel, Symbol: s.cfg.Symbol,
				OrderID: (*p).OrderID, Kind: engine.KindStopEntry, Detail: "pending order expired",
			})
			*p = nil
		}
	}
}

// computeLevels derives both sides' entry/stop/target estimates from a
// breakout range. Stops are clamped into [min_sl_perc, max_sl_perc] of
// the entry price.
func (s *PBHStrategy) computeLevels(rangeHigh, rangeLow float64, ratio float64, ratioOK bool) {
	if rangeLow <= 0 || rangeHigh < rangeLow {
		return
	}
	rng := rangeHigh - rangeLow
	ls := levelSet{
		valid:      true,
		rangeHigh:  rangeHigh,
		rangeLow:   rangeLow,
		longEntry:  rangeHigh * (1 + s.cfg.BufferPerc/100),
		shortEntry: rangeLow * (1 - s.cfg.BufferPerc/100),
	}
	ls.longStop = s.clampStop(engine.SideLong, ls.longEntry, rangeLow+rng*s.cfg.SLBuffer)
	ls.shortStop = s.clampStop(engine.SideShort, ls.shortEntry, rangeHigh-rng*s.cfg.SLBuffer)

	// 8. Take-profit gate: the ladder is only armed when the bar's
	// ADR ratio clears the threshold, or beats the day's running
	// minimum while above the secondary floor.
	armed := ratioOK && (ratio >= s.cfg.RoteInputOne ||
		(ratio >= s.cfg.RoteInputTwo && s.day.minRatioSet && ratio > s.day.minRatio))
	if armed {
		for i, m := range s.cfg.TPMultipliers {
			if s.cfg.TPPercents[i] <= 0 {
				continue
			}
			ls.longTPs[i] = ls.longEntry + rng*m
			ls.shortTPs[i] = ls.shortEntry - rng*m
		}
	}
	s.levels = ls
}

// clampStop bounds the stop distance to [MinSLPerc, MaxSLPerc] of the
// entry price. A seed implying a wider stop is tightened to the max; a
// tighter seed is widened to the min.
func (s *PBHStrategy) clampStop(side engine.PositionSide, entry, seed float64) float64 {
	distPct := math.Abs(entry-seed) / entry * 100
	if distPct > s.cfg.MaxSLPerc {
		distPct = s.cfg.MaxSLPerc
	} else if distPct < s.cfg.MinSLPerc {
		distPct = s.cfg.MinSLPerc
	}
	if side == engine.SideLong {
		return entry * (1 - distPct/100)
	}
	return entry * (1 + distPct/100)
}

func (s *PBHStrategy) submitEntry(bar engine.Bar, side engine.PositionSide) {
	entry := s.levels.longEntry
	stop := s.levels.longStop
	tps := s.levels.longTPs
	if side == engine.SideShort {
		entry = s.levels.shortEntry
		stop = s.levels.shortStop
		tps = s.levels.shortTPs
	}
	qty := s.sizer.Quantity(s.day.entriesPlaced, entry, stop)
	if qty <= 0 {
		return // zero-risk distance, skip this opportunity
	}

	s.groupSeq++
	spec := engine.OrderSpec{
		Kind:     engine.KindStopEntry,
		Side:     side.EntrySide(),
		Price:    entry,
		Quantity: qty,
		GroupID:  s.groupSeq,
	}
	id, err := s.broker.Submit(spec)
	if err != nil {
		s.rejects++
		s.events.Append(engine.Event{
			Ts: bar.Timestamp, Type: engine.EventOrderReject, Symbol: s.cfg.Symbol,
			Kind: spec.Kind, Side: spec.Side, Price: spec.Price, Qty: qty, Detail: err.Error(),
		})
		return
	}
	p := &engine.PendingEntry{
		Side:        side,
		Trigger:     entry,
		Stop:        stop,
		TakeProfits: tps,
		Quantity:    qty,
		BarIndex:    s.barIndex,
		OrderID:     id,
		GroupID:     s.groupSeq,
	}
	if side == engine.SideLong {
		s.pendingLong = p
	} else {
		s.pendingShort = p
	}
	s.day.entriesPlaced++
	s.entriesPlacedAll++
	s.events.Append(engine.Event{
		Ts: bar.Timestamp, Type: engine.EventOrderSubmit, Symbol: s.cfg.Symbol,
		OrderID: id, Kind: spec.Kind, Side: spec.Side, Price: entry, Qty: qty,
	})
	s.logger.Debug("stop entry submitted",
		zap.String("side", side.String()),
		zap.Float64("trigger", entry),
		zap.Float64("stop", stop),
		zap.Float64("qty", qty),
	)
}

func (s *PBHStrategy) maybeMigrateStop(bar engine.Bar, pos *engine.OpenPosition) {
	if pos.MoveStopDone {
		return
	}
	touched := false
	if pos.Side == engine.SideLong {
		touched = bar.High >= pos.MoveStopTrigger
	} else {
		touched = bar.Low <= pos.MoveStopTrigger
	}
	aged := s.barIndex-pos.EntryBarIndex >= s.cfg.MSBarCount
	if !touched && !aged {
		return
	}
	if !pos.MigrateStop() {
		return
	}
	// Replace the resting stop with one at the migrated level; the
	// take-profit legs keep their prices.
	if old, ok := s.stopIDs[pos.GroupID]; ok {
		_ = s.broker.Cancel(old)
	}
	id, err := s.broker.Submit(engine.OrderSpec{
		Kind:     engine.KindStopLoss,
		Side:     pos.Side.ExitSide(),
		Price:    pos.Stop,
		Quantity: pos.Remaining,
		GroupID:  pos.GroupID,
	})
	if err != nil {
		// Position would be left unprotected; flatten instead.
		s.rejects++
		s.events.Append(engine.Event{
			Ts: bar.Timestamp, Type: engine.EventOrderReject, Symbol: s.cfg.Symbol,
			Kind: engine.KindStopLoss, Price: pos.Stop, Detail: err.Error(),
		})
		s.closePosition(pos, bar.Timestamp, bar.Close, "Reject")
		return
	}
	s.stopIDs[pos.GroupID] = id
	s.events.Append(engine.Event{
		Ts: bar.Timestamp, Type: engine.EventStopMigrated, Symbol: s.cfg.Symbol,
		OrderID: id, Kind: engine.KindStopLoss, Price: pos.Stop, Qty: pos.Remaining,
	})
}

// OnFill reacts to one broker fill. Fills for a bar are delivered, in
// the broker's deterministic order, before OnBar for that bar runs.
func (s *PBHStrategy) OnFill(f engine.Fill, bar engine.Bar) {
	switch f.Spec.Kind {
	case engine.KindStopEntry:
		s.onEntryFill(f, bar)
	case engine.KindStopLoss:
		s.onStopFill(f)
	case engine.KindTakeProfit:
		s.onTakeProfitFill(f)
	}
}

func (s *PBHStrategy) onEntryFill(f engine.Fill, bar engine.Bar) {
	var pending *engine.PendingEntry
	if s.pendingLong != nil && s.pendingLong.OrderID == f.OrderID {
		pending = s.pendingLong
		s.pendingLong = nil
	} else if s.pendingShort != nil && s.pendingShort.OrderID == f.OrderID {
		pending = s.pendingShort
		s.pendingShort = nil
	}
	if pending == nil {
		return // already cancelled; late fill report is dropped
	}
	s.entriesFilled++

	// The cap is re-checked at fill time: two stop entries can trigger
	// inside one whipsaw bar, and the second fill arrives before OnBar
	// sees the first position. Surplus shares exit at the bar close and
	// never become a tracked position.
	if len(s.positions) >= s.cfg.PyramidingCount {
		over := &engine.OpenPosition{
			Side:          pending.Side,
			EntryPrice:    f.Price,
			EntryTime:     f.Ts,
			EntryBarIndex: s.barIndex,
			Quantity:      pending.Quantity,
			Remaining:     pending.Quantity,
			Stop:          pending.Stop,
			StopOrig:      pending.Stop,
			GroupID:       pending.GroupID,
		}
		s.flattens++
		s.realized += over.PnL(bar.Close, over.Remaining)
		s.recordTrade(over, bar.Timestamp, bar.Close, over.Remaining, "Flatten")
		s.broker.CancelGroup(pending.GroupID)
		return
	}

	pos := &engine.OpenPosition{
		Side:          pending.Side,
		EntryPrice:    f.Price,
		EntryTime:     f.Ts,
		EntryBarIndex: s.barIndex,
		Quantity:      pending.Quantity,
		Remaining:     pending.Quantity,
		Stop:          pending.Stop,
		StopOrig:      pending.Stop,
		GroupID:       pending.GroupID,
	}
	if s.cfg.UseMS {
		risk := math.Abs(f.Price - pending.Stop)
		if pos.Side == engine.SideLong {
			pos.MoveStopTrigger = f.Price + risk*s.cfg.MSRVal
			pos.MoveStopTarget = f.Price + risk*s.cfg.MoveRVal
		} else {
			pos.MoveStopTrigger = f.Price - risk*s.cfg.MSRVal
			pos.MoveStopTarget = f.Price - risk*s.cfg.MoveRVal
		}
	}

	s.events.Append(engine.Event{
		Ts: f.Ts, Type: engine.EventOrderFill, Symbol: s.cfg.Symbol,
		OrderID: f.OrderID, Kind: engine.KindStopEntry, Side: f.Spec.Side,
		Price: f.Price, Qty: pending.Quantity,
	})

	// Exactly-once protective placement: the stop, then any armed
	// take-profit legs.
	stopID, err := s.broker.Submit(engine.OrderSpec{
		Kind:     engine.KindStopLoss,
		Side:     pos.Side.ExitSide(),
		Price:    pos.Stop,
		Quantity: pos.Remaining,
		GroupID:  pos.GroupID,
	})
	if err != nil {
		s.rejects++
		s.events.Append(engine.Event{
			Ts: f.Ts, Type: engine.EventOrderReject, Symbol: s.cfg.Symbol,
			Kind: engine.KindStopLoss, Price: pos.Stop, Detail: err.Error(),
		})
		s.closePosition(pos, f.Ts, bar.Close, "Reject")
		return
	}
	s.stopIDs[pos.GroupID] = stopID

	// Legs are positional: slot i in pos.Legs is broker leg i. Gated
	// or rejected slots are marked filled with zero quantity so their
	// shares stay covered by the stop.
	legQty := engine.SplitLegQuantities(pending.Quantity, s.cfg.TPPercents)
	pos.Legs = make([]engine.TakeProfitLeg, engine.MaxTakeProfitLegs)
	for i := 0; i < engine.MaxTakeProfitLegs; i++ {
		if pending.TakeProfits[i] <= 0 || legQty[i] <= 0 {
			pos.Legs[i] = engine.TakeProfitLeg{Filled: true}
			continue
		}
		_, err := s.broker.Submit(engine.OrderSpec{
			Kind:     engine.KindTakeProfit,
			Side:     pos.Side.ExitSide(),
			Price:    pending.TakeProfits[i],
			Quantity: legQty[i],
			GroupID:  pos.GroupID,
			Leg:      i,
		})
		if err != nil {
			s.rejects++
			s.events.Append(engine.Event{
				Ts: f.Ts, Type: engine.EventOrderReject, Symbol: s.cfg.Symbol,
				Kind: engine.KindTakeProfit, Price: pending.TakeProfits[i], Detail: err.Error(),
			})
			pos.Legs[i] = engine.TakeProfitLeg{Filled: true}
			continue
		}
		pos.Legs[i] = engine.TakeProfitLeg{Price: pending.TakeProfits[i], Quantity: legQty[i]}
	}
	s.positions = append(s.positions, pos)

	// Reaching the cap retires the other side's pending so both sides
	// of a breakout range cannot fill on the same whipsaw bar.
	if len(s.positions) >= s.cfg.PyramidingCount && s.hasPending() {
		s.cancelPendings(bar, "position cap reached")
	}
}

func (s *PBHStrategy) onStopFill(f engine.Fill) {
	pos := s.findPosition(f.Spec.GroupID)
	if pos == nil {
		return
	}
	s.events.Append(engine.Event{
		Ts: f.Ts, Type: engine.EventStopHit, Symbol: s.cfg.Symbol,
		OrderID: f.OrderID, Kind: engine.KindStopLoss, Price: f.Price, Qty: pos.Remaining,
	})
	s.closePosition(pos, f.Ts, f.Price, "StopLoss")
}

func (s *PBHStrategy) onTakeProfitFill(f engine.Fill) {
	pos := s.findPosition(f.Spec.GroupID)
	if pos == nil {
		return
	}
	if f.Spec.Leg < 0 || f.Spec.Leg >= len(pos.Legs) {
		return
	}
	qty := pos.Legs[f.Spec.Leg].Quantity
	if err := pos.ReduceForLeg(f.Spec.Leg); err != nil {
		return
	}
	pnl := pos.PnL(f.Price, qty)
	s.realized += pnl
	s.events.Append(engine.Event{
		Ts: f.Ts, Type: engine.EventTakeProfitHit, Symbol: s.cfg.Symbol,
		OrderID: f.OrderID, Kind: engine.KindTakeProfit, Price: f.Price, Qty: qty,
	})
	s.recordTrade(pos, f.Ts, f.Price, qty, fmt.Sprintf("TakeProfit%d", f.Spec.Leg+1))
	if pos.Flat() {
		s.broker.CancelGroup(pos.GroupID)
		delete(s.stopIDs, pos.GroupID)
		s.removePosition(pos)
	}
}

func (s *PBHStrategy) findPosition(group uint64) *engine.OpenPosition {
	for _, p := range s.positions {
		if p.GroupID == group {
			return p
		}
	}
	return nil
}

func (s *PBHStrategy) removePosition(pos *engine.OpenPosition) {
	for i, p := range s.positions {
		if p == pos {
			s.positions = append(s.positions[:i], s.positions[i+1:]...)
			return
		}
	}
}

// closePosition exits the full remaining quantity, records the trade,
// and cancels sibling exit orders.
func (s *PBHStrategy) closePosition(pos *engine.OpenPosition, ts int64, price float64, reason string) {
	qty := pos.Remaining
	if qty > 0 {
		s.realized += pos.PnL(price, qty)
		s.recordTrade(pos, ts, price, qty, reason)
	}
	pos.Remaining = 0
	s.broker.CancelGroup(pos.GroupID)
	delete(s.stopIDs, pos.GroupID)
	s.removePosition(pos)
}

// flattenAll force-closes every open position at the bar close and
// cancels every pending order. Also the synchronous external
// cancellation path.
func (s *PBHStrategy) flattenAll(bar engine.Bar, reason string) {
	s.flattens++
	for len(s.positions) > 0 {
		s.closePosition(s.positions[0], bar.Timestamp, bar.Close, reason)
	}
	s.cancelPendings(bar, reason)
	s.events.Append(engine.Event{
		Ts: bar.Timestamp, Type: engine.EventForcedFlatten, Symbol: s.cfg.Symbol, Detail: reason,
	})
}

// CloseAll synchronously closes all positions and cancels all pending
// orders at the last seen bar's close. Safe to call at any time,
// including run termination.
func (s *PBHStrategy) CloseAll(reason string) {
	if s.lastTs == 0 {
		return
	}
	if len(s.positions) == 0 && !s.hasPending() {
		return
	}
	s.flattenAll(s.lastBar, reason)
}

// OpenPositionCount reports currently open (pyramided) positions.
func (s *PBHStrategy) OpenPositionCount() int { return len(s.positions) }

// DailyEntriesPlaced reports the current day's entry submissions.
func (s *PBHStrategy) DailyEntriesPlaced() int { return s.day.entriesPlaced }

func (s *PBHStrategy) recordTrade(pos *engine.OpenPosition, ts int64, price, qty float64, reason string) {
	s.trades = append(s.trades, TradeRecord{
		Symbol:     s.cfg.Symbol,
		Side:       pos.Side,
		EntryTime:  pos.EntryTime,
		EntryPrice: decimal.NewFromFloat(pos.EntryPrice),
		ExitTime:   ts,
		ExitPrice:  decimal.NewFromFloat(price),
		ExitReason: reason,
		Quantity:   decimal.NewFromFloat(qty),
		PnlUsd:     decimal.NewFromFloat(pos.PnL(price, qty)),
		RMultiple:  decimal.NewFromFloat(pos.RMultiple(price)),
		StopPrice:  decimal.NewFromFloat(pos.Stop),
		StopOrig:   decimal.NewFromFloat(pos.StopOrig),
		BarsHeld:   s.barIndex - pos.EntryBarIndex,
	})
}

func (s *PBHStrategy) recordEquity(bar engine.Bar) {
	unrealized := 0.0
	for _, p := range s.positions {
		unrealized += p.PnL(bar.Close, p.Remaining)
	}
	eq := initialEquity + s.realized + unrealized
	if eq > s.peakEquity {
		s.peakEquity = eq
	}
	if dd := s.peakEquity - eq; dd > s.maxDrawdown {
		s.maxDrawdown = dd
	}
	s.equity = append(s.equity, EquityPoint{
		Timestamp: bar.Timestamp,
		Equity:    decimal.NewFromFloat(eq),
		Drawdown:  decimal.NewFromFloat(s.peakEquity - eq),
	})
}
