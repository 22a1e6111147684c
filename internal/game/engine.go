// internal/game/engine.go
package game

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/gostop/internal/models"
	"github.com/jason-s-yu/gostop/internal/scoring"
	"github.com/sirupsen/logrus"
)

var (
	// ErrIllegalIntent is returned for an intent sent in the wrong phase, by the
	// seat that does not own the turn, or naming a card that is not available.
	// Engine state is unchanged when it is returned.
	ErrIllegalIntent = errors.New("illegal intent")

	// ErrGameOver is returned for any intent after the round ended.
	ErrGameOver = errors.New("game over")
)

// Dealing pattern: two rounds of 5 to the first hand, 4 to the field, 5 to the other hand.
const (
	dealRounds   = 2
	dealHandCut  = 5
	dealFieldCut = 4
)

// PlayOptions are the optional targets of a hand play.
type PlayOptions struct {
	TargetCardID *int // field card to take if the play matches two
	TargetMonth  *int // field pile the card was dropped on; must equal the card's month
}

// SeatInfo identifies who sits in a seat.
type SeatInfo struct {
	ID   uuid.UUID
	Name string
}

type seat struct {
	info        SeatInfo
	hand        *models.Hand
	collected   *models.CollectedSet
	goCount     int
	lastGoScore int
	shaken      bool
	shakeMonths []int
	ppuk        bool
	strategy    Strategy // nil for a human seat, local or remote
}

// Engine is the turn/phase state machine of one round. It is not safe for
// concurrent use: exactly one goroutine drives it, which is the single-writer
// rule of networked play.
type Engine struct {
	ID uuid.UUID

	rules   Rules
	logger  logrus.FieldLogger
	rng     *rand.Rand
	order   []models.Card // fixed deal order, nil to shuffle
	first   Side
	aiDelay time.Duration

	deck  *models.Deck
	field *models.Field
	seats [2]*seat

	phase      Phase
	turn       Side
	turnNumber int

	pendingHand       *models.Card
	pendingDeck       *models.Card
	pendingCandidates []models.Card
	pendingScore      int

	result    *Result
	listeners listeners
}

// Option configures a new Engine.
type Option func(*Engine)

// WithRules overrides the default ruleset.
func WithRules(r Rules) Option { return func(e *Engine) { e.rules = r } }

// WithLogger sets the logger; fields for the round id are added.
func WithLogger(l logrus.FieldLogger) Option { return func(e *Engine) { e.logger = l } }

// WithSeed makes the shuffle deterministic.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.rng = rand.New(rand.NewSource(seed)) }
}

// WithDeck deals from a fixed order instead of shuffling. The order must hold all 48 cards.
func WithDeck(order []models.Card) Option {
	return func(e *Engine) {
		e.order = make([]models.Card, len(order))
		copy(e.order, order)
	}
}

// WithFirstTurn picks the seat that is dealt first and plays first.
func WithFirstTurn(s Side) Option { return func(e *Engine) { e.first = s } }

// WithSeats names the two seats.
func WithSeats(player, opponent SeatInfo) Option {
	return func(e *Engine) {
		e.seats[SidePlayer].info = player
		e.seats[SideOpponent].info = opponent
	}
}

// WithStrategy hands a seat to a scripted strategy.
func WithStrategy(s Side, st Strategy) Option {
	return func(e *Engine) { e.seats[s].strategy = st }
}

// WithAIDelay pauses before every scripted decision. Zero keeps the engine headless.
func WithAIDelay(d time.Duration) Option { return func(e *Engine) { e.aiDelay = d } }

// NewEngine builds an engine in PhaseWaiting.
func NewEngine(opts ...Option) *Engine {
	id, _ := uuid.NewRandom()
	e := &Engine{
		ID:     id,
		rules:  DefaultRules(),
		logger: logrus.StandardLogger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		first:  SidePlayer,
		field:  models.NewField(),
		phase:  PhaseWaiting,
	}
	for i := range e.seats {
		e.seats[i] = &seat{hand: models.NewHand(nil), collected: models.NewCollectedSet()}
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithField("round", e.ID)
	return e
}

// Subscribe registers a listener and returns a function that removes it.
func (e *Engine) Subscribe(l Listener) func() { return e.listeners.add(l) }

// Phase is the current state.
func (e *Engine) Phase() Phase { return e.phase }

// Turn is the seat that currently owns the turn.
func (e *Engine) Turn() Side { return e.turn }

// TurnNumber counts started turns, starting at 1.
func (e *Engine) TurnNumber() int { return e.turnNumber }

// Rules returns the ruleset in force.
func (e *Engine) Rules() Rules { return e.rules }

// Result is nil until the round ends.
func (e *Engine) Result() *Result { return e.result }

// Seat returns who sits in s.
func (e *Engine) Seat(s Side) SeatInfo { return e.seats[s].info }

// IsScripted reports whether s is driven by a strategy.
func (e *Engine) IsScripted(s Side) bool { return e.seats[s].strategy != nil }

// Hand returns a copy of a seat's hand.
func (e *Engine) Hand(s Side) []models.Card { return e.seats[s].hand.Cards() }

// Collected returns a copy of a seat's captured cards.
func (e *Engine) Collected(s Side) []models.Card { return e.seats[s].collected.Cards() }

// Field returns the cards on the table.
func (e *Engine) Field() []models.Card { return e.field.Cards() }

// DeckLen is the number of undrawn cards.
func (e *Engine) DeckLen() int {
	if e.deck == nil {
		return 0
	}
	return e.deck.Len()
}

// GoCount is how many times a seat declared go.
func (e *Engine) GoCount(s Side) int { return e.seats[s].goCount }

// Shaken reports the shake flag of a seat.
func (e *Engine) Shaken(s Side) bool { return e.seats[s].shaken }

// Ppuk reports the ppuk flag of a seat.
func (e *Engine) Ppuk(s Side) bool { return e.seats[s].ppuk }

// Candidates returns the field cards offered by the pending selection.
func (e *Engine) Candidates() []models.Card {
	out := make([]models.Card, len(e.pendingCandidates))
	copy(out, e.pendingCandidates)
	return out
}

// Score is a seat's running score before multipliers.
func (e *Engine) Score(s Side) scoring.Breakdown {
	return scoring.Calculate(e.seats[s].collected.Cards())
}

// CardCount sums every location a card can be in. It is 48 at all times after dealing.
func (e *Engine) CardCount() int {
	n := e.DeckLen() + e.field.Len()
	for _, s := range e.seats {
		n += s.hand.Len() + s.collected.Len()
	}
	if e.pendingHand != nil {
		n++
	}
	if e.pendingDeck != nil {
		n++
	}
	return n
}

// Start deals the round and opens the first turn.
func (e *Engine) Start() error {
	if e.phase != PhaseWaiting {
		return fmt.Errorf("start in phase %s: %w", e.phase, ErrIllegalIntent)
	}
	if e.order != nil {
		if err := validateOrder(e.order); err != nil {
			return err
		}
		e.deck = models.NewDeck(e.order)
	} else {
		e.deck = models.NewShuffledDeck(e.rng)
	}
	e.setPhase(PhaseDealing)
	e.deal()
	e.logger.WithFields(logrus.Fields{
		"first": e.first,
		"field": e.field.Len(),
		"deck":  e.deck.Len(),
	}).Info("round dealt")

	for _, s := range []Side{e.first, e.first.Other()} {
		e.scanBomb(s)
	}
	for _, s := range []Side{e.first, e.first.Other()} {
		e.scanShake(s)
	}

	e.startTurn(e.first)
	e.pump()
	return nil
}

func validateOrder(order []models.Card) error {
	if len(order) != models.DeckSize {
		return fmt.Errorf("deck order has %d cards, want %d", len(order), models.DeckSize)
	}
	seen := make(map[int]bool, models.DeckSize)
	for _, c := range order {
		if !c.Valid() || seen[c.ID] {
			return fmt.Errorf("deck order has invalid or duplicate card %v", c)
		}
		seen[c.ID] = true
	}
	return nil
}

func (e *Engine) deal() {
	draw := func(n int, put func(models.Card)) {
		for i := 0; i < n; i++ {
			c, _ := e.deck.Draw()
			put(c)
		}
	}
	active, other := e.seats[e.first], e.seats[e.first.Other()]
	for r := 0; r < dealRounds; r++ {
		draw(dealHandCut, active.hand.Add)
		draw(dealFieldCut, e.field.Add)
		draw(dealHandCut, other.hand.Add)
	}
}

// scanBomb captures a four-of-a-month starting hand together with that month's field cards.
func (e *Engine) scanBomb(side Side) {
	s := e.seats[side]
	for m := 1; m <= 12; m++ {
		if s.hand.MonthCounts()[m] != 4 {
			continue
		}
		var taken []models.Card
		for _, c := range s.hand.Cards() {
			if c.Month == m {
				s.hand.Remove(c.ID)
				taken = append(taken, c)
			}
		}
		taken = append(taken, e.field.TakeMonth(m)...)
		s.collected.Add(taken...)
		e.logger.WithFields(logrus.Fields{"side": side, "month": m}).Info("bomb")
		e.emit(Event{Type: EventBomb, Side: sidePtr(side), Month: m})
		e.emitCollected()
		e.emitScores()
	}
}

func (e *Engine) scanShake(side Side) {
	s := e.seats[side]
	counts := s.hand.MonthCounts()
	var months []int
	for m := 1; m <= 12; m++ {
		if counts[m] == 3 {
			months = append(months, m)
		}
	}
	if len(months) == 0 {
		return
	}
	s.shaken = true
	s.shakeMonths = months
	e.emit(Event{Type: EventShake, Side: sidePtr(side), Months: months})
}

// PlayCard plays a card from the player's hand.
func (e *Engine) PlayCard(cardID int, opts PlayOptions) error {
	return e.apply(SidePlayer, IntentPlayCard, func() error { return e.playCard(SidePlayer, cardID, opts) })
}

// OpponentPlayCard is PlayCard for the opponent seat.
func (e *Engine) OpponentPlayCard(cardID int, opts PlayOptions) error {
	return e.apply(SideOpponent, IntentPlayCard, func() error { return e.playCard(SideOpponent, cardID, opts) })
}

// SelectFieldCard resolves the player's pending hand-card selection.
func (e *Engine) SelectFieldCard(cardID int) error {
	return e.apply(SidePlayer, IntentSelectField, func() error { return e.resolveFieldSelection(SidePlayer, cardID) })
}

// OpponentSelectFieldCard is SelectFieldCard for the opponent seat.
func (e *Engine) OpponentSelectFieldCard(cardID int) error {
	return e.apply(SideOpponent, IntentSelectField, func() error { return e.resolveFieldSelection(SideOpponent, cardID) })
}

// SelectDeckCard resolves the player's pending drawn-card selection.
func (e *Engine) SelectDeckCard(cardID int) error {
	return e.apply(SidePlayer, IntentSelectDeck, func() error { return e.resolveDeckSelection(SidePlayer, cardID) })
}

// OpponentSelectDeckCard is SelectDeckCard for the opponent seat.
func (e *Engine) OpponentSelectDeckCard(cardID int) error {
	return e.apply(SideOpponent, IntentSelectDeck, func() error { return e.resolveDeckSelection(SideOpponent, cardID) })
}

// DeclareGo continues the round for the seat that owns the go/stop decision.
func (e *Engine) DeclareGo() error {
	side := e.turn
	return e.apply(side, IntentDeclareGo, func() error { return e.declareGo(side) })
}

// DeclareStop ends the round in favour of the seat that owns the go/stop decision.
func (e *Engine) DeclareStop() error {
	side := e.turn
	return e.apply(side, IntentDeclareStop, func() error { return e.declareStop(side) })
}

// Skip forces the turn owner through a timed-out turn. From a turn phase no
// hand card is played but the deck draw still happens; pending selections take
// the first candidate and a pending go/stop decision stops.
func (e *Engine) Skip() error {
	side := e.turn
	return e.apply(side, IntentSkip, func() error { return e.skip(side) })
}

// Abort ends the round without a winner, e.g. when the opponent disappeared.
func (e *Engine) Abort(reason string) {
	if e.phase == PhaseGameOver {
		return
	}
	// an unresolved card goes back on the table so the 48 stay accounted for
	for _, c := range []*models.Card{e.pendingHand, e.pendingDeck} {
		if c != nil {
			e.field.Add(*c)
		}
	}
	e.clearPending()
	e.result = &Result{Aborted: true, Reason: reason}
	e.setPhase(PhaseGameOver)
	e.logger.WithField("reason", reason).Warn("round aborted")
	e.emit(Event{Type: EventGameAborted, Reason: reason, Result: e.result})
}

// apply is the single gate for inbound intents.
func (e *Engine) apply(side Side, intent Intent, fn func() error) error {
	if e.phase == PhaseGameOver {
		return ErrGameOver
	}
	if !e.phase.accepts(intent) || e.turn != side || e.seats[side].strategy != nil {
		e.logger.WithFields(logrus.Fields{
			"side":   side,
			"intent": intent,
			"phase":  e.phase,
			"turn":   e.turn,
		}).Debug("rejected intent")
		return fmt.Errorf("%s by %s in %s: %w", intent, side, e.phase, ErrIllegalIntent)
	}
	if err := fn(); err != nil {
		return err
	}
	e.pump()
	return nil
}

// pump advances the engine through every decision that needs no human:
// scripted seats, and draw-only turns for an empty hand.
func (e *Engine) pump() {
	for e.phase != PhaseGameOver {
		s := e.seats[e.turn]
		if e.phase == turnPhase(e.turn) && s.hand.Len() == 0 {
			_ = e.skip(e.turn)
			continue
		}
		if s.strategy == nil || !e.phase.Blocked() {
			return
		}
		if e.aiDelay > 0 {
			time.Sleep(e.aiDelay)
		}
		var err error
		switch e.phase {
		case turnPhase(e.turn):
			c := s.strategy.ChoosePlay(s.hand.Cards(), e.field.Cards())
			err = e.playCard(e.turn, c.ID, PlayOptions{})
		case PhaseSelecting:
			c := s.strategy.ChooseFieldCard(*e.pendingHand, e.Candidates())
			err = e.resolveFieldSelection(e.turn, c.ID)
		case PhaseDeckSelecting:
			err = e.resolveDeckSelection(e.turn, e.pendingCandidates[0].ID)
		case PhaseGoStop:
			if s.strategy.ChooseGoOrStop(e.pendingScore, s.goCount) == DecisionStop {
				err = e.declareStop(e.turn)
			} else {
				err = e.declareGo(e.turn)
			}
		}
		if err != nil {
			// a strategy that names an unavailable card falls back to the first legal choice
			e.logger.WithError(err).Warn("strategy made an illegal choice")
			e.fallback()
		}
	}
}

func (e *Engine) fallback() {
	switch e.phase {
	case turnPhase(e.turn):
		_ = e.playCard(e.turn, e.seats[e.turn].hand.Cards()[0].ID, PlayOptions{})
	case PhaseSelecting:
		_ = e.resolveFieldSelection(e.turn, e.pendingCandidates[0].ID)
	}
}

func (e *Engine) playCard(side Side, cardID int, opts PlayOptions) error {
	s := e.seats[side]
	card, ok := models.CardByID(cardID)
	if !ok || !s.hand.Contains(cardID) {
		return fmt.Errorf("card %d not in %s hand: %w", cardID, side, ErrIllegalIntent)
	}
	if opts.TargetMonth != nil && *opts.TargetMonth != card.Month {
		return fmt.Errorf("card %v dropped on month %d: %w", card, *opts.TargetMonth, ErrIllegalIntent)
	}
	s.hand.Remove(cardID)

	e.setPhase(PhaseResolving)
	e.emit(Event{Type: EventResolving, Side: sidePtr(side), Card: cardPtr(card), Source: SourceHand})

	matches := e.field.Month(card.Month)
	switch len(matches) {
	case 0:
		e.field.Add(card)
	case 1:
		e.field.Remove(matches[0].ID)
		e.capture(side, card, matches[0])
	case 2:
		e.pendingHand = cardPtr(card)
		e.pendingCandidates = matches
		e.setPhase(PhaseSelecting)
		e.emit(Event{Type: EventRequireFieldSelection, Side: sidePtr(side), Card: cardPtr(card), Candidates: matches})
		if opts.TargetCardID != nil && containsCard(matches, *opts.TargetCardID) {
			return e.resolveFieldSelection(side, *opts.TargetCardID)
		}
		return nil
	default:
		// three on the table: the card stays there until the draw decides
		e.field.Add(card)
	}
	return e.drawStep(side)
}

func (e *Engine) resolveFieldSelection(side Side, cardID int) error {
	if !containsCard(e.pendingCandidates, cardID) {
		return fmt.Errorf("card %d is not a candidate: %w", cardID, ErrIllegalIntent)
	}
	chosen, _ := e.field.Remove(cardID)
	played := *e.pendingHand
	e.clearPending()
	e.setPhase(PhaseResolving)
	e.capture(side, played, chosen)
	return e.drawStep(side)
}

func (e *Engine) drawStep(side Side) error {
	drawn, ok := e.deck.Draw()
	if !ok {
		return e.finishTurn(side)
	}
	e.emit(Event{Type: EventResolving, Side: sidePtr(side), Card: cardPtr(drawn), Source: SourceDeck})

	matches := e.field.Month(drawn.Month)
	switch {
	case len(matches) == 0:
		e.field.Add(drawn)
	case len(matches) == 1:
		e.field.Remove(matches[0].ID)
		e.capture(side, drawn, matches[0])
	case len(matches) == 2:
		if e.seats[side].strategy != nil {
			e.field.Remove(matches[0].ID)
			e.capture(side, drawn, matches[0])
			break
		}
		e.pendingDeck = cardPtr(drawn)
		e.pendingCandidates = matches
		e.setPhase(PhaseDeckSelecting)
		e.emit(Event{Type: EventRequireDeckSelection, Side: sidePtr(side), Card: cardPtr(drawn), Candidates: matches})
		return nil
	default:
		taken := e.field.TakeMonth(drawn.Month)
		e.seats[side].ppuk = true
		e.logger.WithFields(logrus.Fields{"side": side, "month": drawn.Month}).Info("ppuk")
		e.emit(Event{Type: EventPpuk, Side: sidePtr(side), Month: drawn.Month})
		e.capture(side, append([]models.Card{drawn}, taken...)...)
	}
	return e.finishTurn(side)
}

func (e *Engine) resolveDeckSelection(side Side, cardID int) error {
	if !containsCard(e.pendingCandidates, cardID) {
		return fmt.Errorf("card %d is not a candidate: %w", cardID, ErrIllegalIntent)
	}
	chosen, _ := e.field.Remove(cardID)
	drawn := *e.pendingDeck
	e.clearPending()
	e.setPhase(PhaseResolving)
	e.capture(side, drawn, chosen)
	return e.finishTurn(side)
}

// finishTurn is the end-of-turn checkpoint.
func (e *Engine) finishTurn(side Side) error {
	e.emitScores()
	s := e.seats[side]
	score := scoring.Calculate(s.collected.Cards()).BaseTotal
	if e.goStopEligible(s, score) {
		e.pendingScore = score
		e.setPhase(PhaseGoStop)
		e.emit(Event{Type: EventGoStopDecision, Side: sidePtr(side), Score: score, GoCount: s.goCount})
		return nil
	}
	return e.endTurn(side)
}

func (e *Engine) goStopEligible(s *seat, score int) bool {
	if score < e.rules.GoStopThreshold {
		return false
	}
	return s.goCount == 0 || score > s.lastGoScore
}

func (e *Engine) endTurn(side Side) error {
	e.emit(Event{Type: EventTurnEnd, Side: sidePtr(side), TurnNumber: e.turnNumber})
	if e.deck.Len() == 0 && e.seats[SidePlayer].hand.Len() == 0 && e.seats[SideOpponent].hand.Len() == 0 {
		e.finishRound(nil, ReasonNatural)
		return nil
	}
	e.startTurn(side.Other())
	return nil
}

func (e *Engine) startTurn(side Side) {
	e.turn = side
	e.turnNumber++
	e.setPhase(turnPhase(side))
	e.emit(Event{Type: EventTurnStart, Side: sidePtr(side), TurnNumber: e.turnNumber})
}

func (e *Engine) declareGo(side Side) error {
	s := e.seats[side]
	s.goCount++
	s.lastGoScore = e.pendingScore
	e.pendingScore = 0
	e.logger.WithFields(logrus.Fields{"side": side, "goCount": s.goCount}).Info("go")
	e.emit(Event{Type: EventGoDeclared, Side: sidePtr(side), GoCount: s.goCount, Score: s.lastGoScore})
	return e.endTurn(side)
}

func (e *Engine) declareStop(side Side) error {
	e.emit(Event{Type: EventStopDeclared, Side: sidePtr(side), Score: e.pendingScore})
	e.pendingScore = 0
	e.finishRound(&side, ReasonStop)
	return nil
}

func (e *Engine) skip(side Side) error {
	switch e.phase {
	case PhaseSelecting:
		return e.resolveFieldSelection(side, e.pendingCandidates[0].ID)
	case PhaseDeckSelecting:
		return e.resolveDeckSelection(side, e.pendingCandidates[0].ID)
	case PhaseGoStop:
		return e.declareStop(side)
	}
	e.emit(Event{Type: EventTurnSkipped, Side: sidePtr(side), TurnNumber: e.turnNumber})
	e.setPhase(PhaseResolving)
	return e.drawStep(side)
}

// finishRound computes both final breakdowns. winner is nil for a natural end,
// in which case the higher total wins and equal totals are a draw.
func (e *Engine) finishRound(winner *Side, reason string) {
	final := e.FinalScores()
	res := &Result{Reason: reason, Player: final[SidePlayer], Opponent: final[SideOpponent]}
	switch {
	case winner != nil:
		res.Winner = winner
	case res.Player.Total == res.Opponent.Total:
		res.Draw = true
	case res.Player.Total > res.Opponent.Total:
		res.Winner = sidePtr(SidePlayer)
	default:
		res.Winner = sidePtr(SideOpponent)
	}
	e.result = res
	e.clearPending()
	e.setPhase(PhaseGameOver)
	e.logger.WithFields(logrus.Fields{
		"reason":   reason,
		"draw":     res.Draw,
		"player":   res.Player.Total,
		"opponent": res.Opponent.Total,
	}).Info("round finished")
	e.emit(Event{Type: EventGameEnd, Side: res.Winner, Result: res})
}

// FinalScores applies multipliers to both seats, each against the other's counters.
func (e *Engine) FinalScores() [2]scoring.Breakdown {
	base := [2]scoring.Breakdown{e.Score(SidePlayer), e.Score(SideOpponent)}
	var out [2]scoring.Breakdown
	for _, side := range []Side{SidePlayer, SideOpponent} {
		s, opp := e.seats[side], e.seats[side.Other()]
		ctx := scoring.Context{
			GoCount:         s.goCount,
			Shaken:          s.shaken,
			Ppuk:            s.ppuk,
			OpponentGoCount: opp.goCount,
		}
		out[side] = scoring.ApplyMultipliers(base[side], base[side.Other()], ctx, e.rules.Multipliers)
	}
	return out
}

func (e *Engine) capture(side Side, cards ...models.Card) {
	e.seats[side].collected.Add(cards...)
	e.emitCollected()
}

func (e *Engine) clearPending() {
	e.pendingHand = nil
	e.pendingDeck = nil
	e.pendingCandidates = nil
}

func (e *Engine) setPhase(p Phase) {
	if !canTransition(e.phase, p) {
		panic(fmt.Sprintf("game: illegal transition %s -> %s", e.phase, p))
	}
	e.phase = p
}

func (e *Engine) emit(ev Event) { e.listeners.emit(ev) }

func (e *Engine) emitScores() {
	e.emit(Event{Type: EventScoreUpdate, Scores: &SideScores{
		Player:   e.Score(SidePlayer).BaseTotal,
		Opponent: e.Score(SideOpponent).BaseTotal,
	}})
}

func (e *Engine) emitCollected() {
	view := func(s *seat) CollectedView {
		g := s.collected.Grouped()
		return CollectedView{Counts: g.Counts(), Cards: g}
	}
	e.emit(Event{Type: EventCollectedUpdate, Collected: &CollectedUpdate{
		Player:   view(e.seats[SidePlayer]),
		Opponent: view(e.seats[SideOpponent]),
	}})
}

func containsCard(cards []models.Card, id int) bool {
	for _, c := range cards {
		if c.ID == id {
			return true
		}
	}
	return false
}
