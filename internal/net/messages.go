package net

import (
	"encoding/binary"
	"errors"

	"github.com/shopspring/decimal"

	"vidar/internal/engine"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
	ErrSymbolTooLong      = errors.New("symbol too long")
)

// TickScale converts between decimal prices and integer ticks: one tick is a
// hundredth of a price unit. The engine itself only ever sees ticks.
const TickScale = 100

var tickScaleDec = decimal.NewFromInt(TickScale)

// DecimalToTicks floors a decimal price onto the tick grid.
func DecimalToTicks(price decimal.Decimal) uint32 {
	return uint32(price.Mul(tickScaleDec).IntPart())
}

// TicksToDecimal renders a tick price as its decimal value.
func TicksToDecimal(ticks uint32) decimal.Decimal {
	return decimal.NewFromInt(int64(ticks)).Div(tickScaleDec)
}

type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	ModifyOrder
	LogBook
)

type Message interface {
	GetType() MessageType
}

// Message format constants.
const (
	BaseMessageHeaderLen        = 2
	NewOrderMessageHeaderLen    = 2 + 8 + 1 + 1 + 1 + 4 + 4 + 4 + 1
	CancelOrderMessageHeaderLen = 2 + 8 + 1
	ModifyOrderMessageHeaderLen = 2 + 8 + 4 + 1
	maxSymbolLen                = 16
)

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, ErrMessageTooShort
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case Heartbeat:
		return BaseMessage{TypeOf: Heartbeat}, nil
	case NewOrder:
		return parseNewOrder(msg)
	case CancelOrder:
		return parseCancelOrder(msg)
	case ModifyOrder:
		return parseModifyOrder(msg)
	case LogBook:
		return BaseMessage{TypeOf: LogBook}, nil
	}
	return BaseMessage{}, ErrInvalidMessageType
}

type NewOrderMessage struct {
	BaseMessage
	OrderID   uint64             // 8 bytes
	Side      engine.Side        // 1 byte
	OrderType engine.OrderType   // 1 byte
	TIF       engine.TimeInForce // 1 byte
	Flags     engine.Flag        // 4 bytes
	Price     uint32             // 4 bytes, ticks
	Quantity  uint32             // 4 bytes
	SymbolLen uint8              // 1 byte
	Symbol    string             // n bytes
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	if len(msg) < NewOrderMessageHeaderLen-BaseMessageHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}

	m.OrderID = binary.BigEndian.Uint64(msg[0:8])
	m.Side = engine.Side(msg[8])
	m.OrderType = engine.OrderType(msg[9])
	m.TIF = engine.TimeInForce(msg[10])
	m.Flags = engine.Flag(binary.BigEndian.Uint32(msg[11:15]))
	m.Price = binary.BigEndian.Uint32(msg[15:19])
	m.Quantity = binary.BigEndian.Uint32(msg[19:23])
	m.SymbolLen = msg[23]

	if len(msg) < 24+int(m.SymbolLen) {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Symbol = string(msg[24 : 24+m.SymbolLen])
	return m, nil
}

func (m NewOrderMessage) Serialize() ([]byte, error) {
	if len(m.Symbol) > maxSymbolLen {
		return nil, ErrSymbolTooLong
	}
	buf := make([]byte, NewOrderMessageHeaderLen+len(m.Symbol))
	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	binary.BigEndian.PutUint64(buf[2:10], m.OrderID)
	buf[10] = byte(m.Side)
	buf[11] = byte(m.OrderType)
	buf[12] = byte(m.TIF)
	binary.BigEndian.PutUint32(buf[13:17], uint32(m.Flags))
	binary.BigEndian.PutUint32(buf[17:21], m.Price)
	binary.BigEndian.PutUint32(buf[21:25], m.Quantity)
	buf[25] = uint8(len(m.Symbol))
	copy(buf[26:], m.Symbol)
	return buf, nil
}

type CancelOrderMessage struct {
	BaseMessage
	OrderID   uint64 // 8 bytes
	SymbolLen uint8  // 1 byte
	Symbol    string // n bytes
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}
	if len(msg) < CancelOrderMessageHeaderLen-BaseMessageHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	m.OrderID = binary.BigEndian.Uint64(msg[0:8])
	m.SymbolLen = msg[8]
	if len(msg) < 9+int(m.SymbolLen) {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	m.Symbol = string(msg[9 : 9+m.SymbolLen])
	return m, nil
}

func (m CancelOrderMessage) Serialize() ([]byte, error) {
	if len(m.Symbol) > maxSymbolLen {
		return nil, ErrSymbolTooLong
	}
	buf := make([]byte, CancelOrderMessageHeaderLen+len(m.Symbol))
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))
	binary.BigEndian.PutUint64(buf[2:10], m.OrderID)
	buf[10] = uint8(len(m.Symbol))
	copy(buf[11:], m.Symbol)
	return buf, nil
}

type ModifyOrderMessage struct {
	BaseMessage
	OrderID   uint64 // 8 bytes
	NewQty    uint32 // 4 bytes
	SymbolLen uint8  // 1 byte
	Symbol    string // n bytes
}

func parseModifyOrder(msg []byte) (ModifyOrderMessage, error) {
	m := ModifyOrderMessage{BaseMessage: BaseMessage{TypeOf: ModifyOrder}}
	if len(msg) < ModifyOrderMessageHeaderLen-BaseMessageHeaderLen {
		return ModifyOrderMessage{}, ErrMessageTooShort
	}
	m.OrderID = binary.BigEndian.Uint64(msg[0:8])
	m.NewQty = binary.BigEndian.Uint32(msg[8:12])
	m.SymbolLen = msg[12]
	if len(msg) < 13+int(m.SymbolLen) {
		return ModifyOrderMessage{}, ErrMessageTooShort
	}
	m.Symbol = string(msg[13 : 13+m.SymbolLen])
	return m, nil
}

func (m ModifyOrderMessage) Serialize() ([]byte, error) {
	if len(m.Symbol) > maxSymbolLen {
		return nil, ErrSymbolTooLong
	}
	buf := make([]byte, ModifyOrderMessageHeaderLen+len(m.Symbol))
	binary.BigEndian.PutUint16(buf[0:2], uint16(ModifyOrder))
	binary.BigEndian.PutUint64(buf[2:10], m.OrderID)
	binary.BigEndian.PutUint32(buf[10:14], m.NewQty)
	buf[14] = uint8(len(m.Symbol))
	copy(buf[15:], m.Symbol)
	return buf, nil
}

// SerializeBase frames a payload-free message (heartbeat, log request).
func SerializeBase(typeOf MessageType) []byte {
	buf := make([]byte, BaseMessageHeaderLen)
	binary.BigEndian.PutUint16(buf, uint16(typeOf))
	return buf
}

// --- Reports (server to client) ----------------------------------------------

type ReportType uint8

const (
	TradeReport ReportType = iota
	OrderEventReport
	ErrorReport
)

// Report frame sizes.
const (
	TradeReportLen      = 1 + 8 + 8 + 4 + 4 + 8
	OrderEventReportLen = 1 + 8 + 1 + 4 + 4
	ErrorReportHdrLen   = 1 + 4 + 2
)

// Trade is the wire form of an execution.
type Trade struct {
	AggressiveID uint64
	PassiveID    uint64
	Price        uint32
	Quantity     uint32
	Timestamp    uint64
}

func (t Trade) Serialize() []byte {
	buf := make([]byte, TradeReportLen)
	buf[0] = byte(TradeReport)
	binary.BigEndian.PutUint64(buf[1:9], t.AggressiveID)
	binary.BigEndian.PutUint64(buf[9:17], t.PassiveID)
	binary.BigEndian.PutUint32(buf[17:21], t.Price)
	binary.BigEndian.PutUint32(buf[21:25], t.Quantity)
	binary.BigEndian.PutUint64(buf[25:33], t.Timestamp)
	return buf
}

func ParseTrade(buf []byte) (Trade, error) {
	if len(buf) < TradeReportLen || ReportType(buf[0]) != TradeReport {
		return Trade{}, ErrMessageTooShort
	}
	return Trade{
		AggressiveID: binary.BigEndian.Uint64(buf[1:9]),
		PassiveID:    binary.BigEndian.Uint64(buf[9:17]),
		Price:        binary.BigEndian.Uint32(buf[17:21]),
		Quantity:     binary.BigEndian.Uint32(buf[21:25]),
		Timestamp:    binary.BigEndian.Uint64(buf[25:33]),
	}, nil
}

// OrderEvent is the wire form of an order-lifecycle event.
type OrderEvent struct {
	OrderID   uint64
	Kind      engine.EventKind
	Quantity  uint32
	Remaining uint32
}

func (e OrderEvent) Serialize() []byte {
	buf := make([]byte, OrderEventReportLen)
	buf[0] = byte(OrderEventReport)
	binary.BigEndian.PutUint64(buf[1:9], e.OrderID)
	buf[9] = byte(e.Kind)
	binary.BigEndian.PutUint32(buf[10:14], e.Quantity)
	binary.BigEndian.PutUint32(buf[14:18], e.Remaining)
	return buf
}

func ParseOrderEvent(buf []byte) (OrderEvent, error) {
	if len(buf) < OrderEventReportLen || ReportType(buf[0]) != OrderEventReport {
		return OrderEvent{}, ErrMessageTooShort
	}
	return OrderEvent{
		OrderID:   binary.BigEndian.Uint64(buf[1:9]),
		Kind:      engine.EventKind(buf[9]),
		Quantity:  binary.BigEndian.Uint32(buf[10:14]),
		Remaining: binary.BigEndian.Uint32(buf[14:18]),
	}, nil
}

// ErrorFrame carries a rejected command's status code and message back to
// the submitting session.
type ErrorFrame struct {
	Status  engine.Status
	Message string
}

func (e ErrorFrame) Serialize() []byte {
	buf := make([]byte, ErrorReportHdrLen+len(e.Message))
	buf[0] = byte(ErrorReport)
	binary.BigEndian.PutUint32(buf[1:5], uint32(e.Status))
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(e.Message)))
	copy(buf[7:], e.Message)
	return buf
}

func ParseErrorFrame(buf []byte) (ErrorFrame, error) {
	if len(buf) < ErrorReportHdrLen || ReportType(buf[0]) != ErrorReport {
		return ErrorFrame{}, ErrMessageTooShort
	}
	msgLen := int(binary.BigEndian.Uint16(buf[5:7]))
	if len(buf) < ErrorReportHdrLen+msgLen {
		return ErrorFrame{}, ErrMessageTooShort
	}
	return ErrorFrame{
		Status:  engine.Status(int32(binary.BigEndian.Uint32(buf[1:5]))),
		Message: string(buf[7 : 7+msgLen]),
	}, nil
}
