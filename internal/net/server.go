package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"vidar/internal/engine"
	"vidar/internal/utils"
)

const (
	maxRecvSize        = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// Engine is the order-handling surface the server drives. Satisfied by
// *engine.Context.
type Engine interface {
	AddLimit(symbol string, id uint64, side engine.Side, price, qty uint32, tif engine.TimeInForce, flags engine.Flag) error
	AddMarket(symbol string, id uint64, side engine.Side, qty uint32) error
	Cancel(symbol string, id uint64) error
	Modify(symbol string, id uint64, newQty uint32) error
	HasOrder(symbol string, id uint64) bool
	SetTradeHandler(engine.TradeHandler)
	SetOrderEventHandler(engine.OrderEventHandler)
	LogBooks()
}

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	id   string
	conn net.Conn
}

// ClientMessage links a message to the session sending it.
type ClientMessage struct {
	sessionID string
	message   Message
}

type Server struct {
	address string
	port    int
	engine  Engine
	pool    utils.WorkerPool
	cancel  context.CancelFunc

	clientSessions     map[string]ClientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan ClientMessage

	// owners routes reports to the session that placed each live order.
	// Touched only from the session handler goroutine and the engine
	// callbacks it triggers, so it needs no lock.
	owners map[uint64]string
}

func New(address string, port int, eng Engine) *Server {
	s := &Server{
		address:        address,
		port:           port,
		engine:         eng,
		pool:           utils.NewWorkerPool(defaultNWorkers),
		clientSessions: make(map[string]ClientSession),
		clientMessages: make(chan ClientMessage, 1),
		owners:         make(map[uint64]string),
	}
	eng.SetTradeHandler(s.reportTrade)
	eng.SetOrderEventHandler(s.reportOrderEvent)
	return s
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	// Setup a cancel on the context for future shutdown.
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	// Start the worker pool.
	s.pool.Setup(t, s.handleConnection)

	// Start the session handler. All engine mutations happen on this one
	// goroutine; the engine itself is single-threaded by contract.
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", s.address).Int("port", s.port).Msg("server running")

	// Start accepting connections.
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			session := s.addClientSession(conn)
			log.Info().
				Str("session", session.id).
				Str("address", conn.RemoteAddr().String()).
				Msg("new client added")

			// Pass over the session to be read from.
			s.pool.AddTask(session)
		}
	}
}

// reportTrade pushes the execution to both counterparties' sessions.
func (s *Server) reportTrade(aggressiveID, passiveID uint64, price, quantity uint32, timestamp uint64) {
	frame := Trade{
		AggressiveID: aggressiveID,
		PassiveID:    passiveID,
		Price:        price,
		Quantity:     quantity,
		Timestamp:    timestamp,
	}.Serialize()

	aggOwner := s.owners[aggressiveID]
	passOwner := s.owners[passiveID]
	s.send(aggOwner, frame)
	if passOwner != aggOwner {
		s.send(passOwner, frame)
	}
}

// reportOrderEvent pushes a lifecycle event to the owning session and drops
// the ownership entry once the order is terminal.
func (s *Server) reportOrderEvent(orderID uint64, kind engine.EventKind, quantity, remaining uint32) {
	frame := OrderEvent{
		OrderID:   orderID,
		Kind:      kind,
		Quantity:  quantity,
		Remaining: remaining,
	}.Serialize()
	s.send(s.owners[orderID], frame)

	switch kind {
	case engine.EventFilled, engine.EventCancelled, engine.EventRejected, engine.EventExpired:
		delete(s.owners, orderID)
	}
}

func (s *Server) reportError(sessionID string, reported error) {
	frame := ErrorFrame{
		Status:  engine.StatusOf(reported),
		Message: reported.Error(),
	}.Serialize()
	if err := s.send(sessionID, frame); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("unable to send error report")
	}
}

func (s *Server) send(sessionID string, frame []byte) error {
	if sessionID == "" {
		return nil
	}
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	session, ok := s.clientSessions[sessionID]
	if !ok {
		return ErrClientDoesNotExist
	}
	if _, err := session.conn.Write(frame); err != nil {
		delete(s.clientSessions, sessionID)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// sessionHandler reads off incoming messages from clients and drives the
// engine. Messages are received from the pool of workers.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			if err := s.handleMessage(message); err != nil {
				log.Error().
					Err(err).
					Str("session", message.sessionID).
					Msg("error handling message")
				s.reportError(message.sessionID, err)
			}
		}
	}
}

func (s *Server) handleMessage(message ClientMessage) error {
	switch message.message.GetType() {
	case Heartbeat:
		return nil
	case NewOrder:
		order, ok := message.message.(NewOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		return s.placeOrder(message.sessionID, order)
	case CancelOrder:
		cancel, ok := message.message.(CancelOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		return s.engine.Cancel(cancel.Symbol, cancel.OrderID)
	case ModifyOrder:
		modify, ok := message.message.(ModifyOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		return s.engine.Modify(modify.Symbol, modify.OrderID, modify.NewQty)
	case LogBook:
		s.engine.LogBooks()
		return nil
	}
	log.Error().
		Int("messageType", int(message.message.GetType())).
		Msg("invalid message type")
	return ErrInvalidMessageType
}

func (s *Server) placeOrder(sessionID string, order NewOrderMessage) error {
	// Register ownership up front: reports fire synchronously inside the
	// engine call.
	s.owners[order.OrderID] = sessionID

	var err error
	switch order.OrderType {
	case engine.MarketOrder:
		err = s.engine.AddMarket(order.Symbol, order.OrderID, order.Side, order.Quantity)
	case engine.StopOrder, engine.StopLimitOrder:
		err = engine.ErrInvalidParam
	default:
		err = s.engine.AddLimit(order.Symbol, order.OrderID, order.Side, order.Price, order.Quantity, order.TIF, order.Flags)
	}
	if err != nil || !s.engine.HasOrder(order.Symbol, order.OrderID) {
		// Rejected, fully filled, or discarded: nothing left to route to.
		delete(s.owners, order.OrderID)
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("session", sessionID).
			Uint64("orderID", order.OrderID).
			Str("symbol", order.Symbol).
			Stringer("price", TicksToDecimal(order.Price)).
			Msg("order rejected")
	}
	return err
}

// handleConnection is a short-lived worker method which reads the next
// message off the connection, parses and passes it forward to sessionHandler
// to handle it. If the connection dies, the client session is cleaned up.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	session, ok := task.(ClientSession)
	if !ok {
		return ErrImproperConversion
	}
	conn := session.conn

	// Set max read timeout so the worker is not pinned to an idle session.
	if err := conn.SetReadDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().
			Str("session", session.id).
			Err(err).
			Msg("failed setting deadline for connection")
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				// Idle session; requeue for the next read.
				s.pool.AddTask(session)
				return nil
			}
			log.Info().
				Err(err).
				Str("session", session.id).
				Msg("connection closed")
			s.deleteClientSession(session.id)
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().
				Err(err).
				Str("session", session.id).
				Msg("error parsing message")
			s.reportError(session.id, err)
		} else {
			s.clientMessages <- ClientMessage{
				message:   message,
				sessionID: session.id,
			}
		}

		// Push the session back to handle the next message.
		s.pool.AddTask(session)
	}
	return nil
}

// addClientSession is an atomic map add.
func (s *Server) addClientSession(conn net.Conn) ClientSession {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	session := ClientSession{
		id:   uuid.NewString(),
		conn: conn,
	}
	s.clientSessions[session.id] = session
	return session
}

// deleteClientSession is an atomic map remove.
func (s *Server) deleteClientSession(sessionID string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	if session, ok := s.clientSessions[sessionID]; ok {
		_ = session.conn.Close()
		delete(s.clientSessions, sessionID)
	}
}
