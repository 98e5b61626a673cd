package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	gonet "net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vidar/internal/engine"
	"vidar/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'modify', 'log']")

	// Order parameters.
	symbol := flag.String("symbol", "AAPL", "Symbol to trade")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit' or 'market'")
	tifStr := flag.String("tif", "gtc", "Time in force: 'gtc', 'ioc' or 'fok'")
	postOnly := flag.Bool("post-only", false, "Reject instead of matching on entry")
	price := flag.String("price", "100.00", "Limit price")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")
	id := flag.Uint64("id", 1, "Order id (first id when placing a batch)")

	// Modify parameters.
	newQty := flag.Uint64("new-qty", 0, "New total quantity for modify")

	flag.Parse()

	conn, err := gonet.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s\n", *serverAddr)

	// Start listening for reports.
	go readReports(conn)

	side := engine.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = engine.Sell
	}
	orderType := engine.LimitOrder
	if strings.ToLower(*typeStr) == "market" {
		orderType = engine.MarketOrder
	}
	tif := engine.GTC
	switch strings.ToLower(*tifStr) {
	case "ioc":
		tif = engine.IOC
	case "fok":
		tif = engine.FOK
	}
	flags := engine.FlagNone
	if *postOnly {
		flags = engine.FlagPostOnly
	}

	switch strings.ToLower(*action) {
	case "place":
		ticks := net.DecimalToTicks(decimal.RequireFromString(*price))
		orderID := *id
		for _, q := range parseQuantities(*qtyStr) {
			err := sendPlaceOrder(conn, *symbol, orderID, side, orderType, tif, flags, ticks, q)
			if err != nil {
				log.Printf("Failed to place order (Qty: %d): %v", q, err)
			} else {
				fmt.Printf("-> Sent %s %s Order: id=%d %s %d @ %s\n",
					strings.ToUpper(*sideStr), orderType, orderID, *symbol, q, *price)
			}
			orderID++
			// Small sleep so the server processes the sequence distinctly.
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if err := sendCancelOrder(conn, *symbol, *id); err != nil {
			log.Printf("Failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> Sent Cancel Request for id %d\n", *id)
		}

	case "modify":
		if err := sendModifyOrder(conn, *symbol, *id, uint32(*newQty)); err != nil {
			log.Printf("Failed to send modify request: %v", err)
		} else {
			fmt.Printf("-> Sent Modify Request for id %d -> qty %d\n", *id, *newQty)
		}

	case "log":
		if _, err := conn.Write(net.SerializeBase(net.LogBook)); err != nil {
			log.Printf("Failed to send log request: %v", err)
		} else {
			fmt.Println("-> Sent Log Request")
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	// Keep the client alive to receive execution reports.
	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

// parseQuantities splits a comma-separated string into a slice of uint32.
func parseQuantities(input string) []uint32 {
	parts := strings.Split(input, ",")
	result := make([]uint32, 0, len(parts))
	for _, p := range parts {
		q, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil || q == 0 {
			log.Fatalf("Invalid quantity %q", p)
		}
		result = append(result, uint32(q))
	}
	return result
}

func sendPlaceOrder(conn gonet.Conn, symbol string, id uint64, side engine.Side, orderType engine.OrderType, tif engine.TimeInForce, flags engine.Flag, price, qty uint32) error {
	msg := net.NewOrderMessage{
		OrderID:   id,
		Side:      side,
		OrderType: orderType,
		TIF:       tif,
		Flags:     flags,
		Price:     price,
		Quantity:  qty,
		Symbol:    symbol,
	}
	buf, err := msg.Serialize()
	if err != nil {
		return err
	}
	_, err = conn.Write(buf)
	return err
}

func sendCancelOrder(conn gonet.Conn, symbol string, id uint64) error {
	buf, err := net.CancelOrderMessage{OrderID: id, Symbol: symbol}.Serialize()
	if err != nil {
		return err
	}
	_, err = conn.Write(buf)
	return err
}

func sendModifyOrder(conn gonet.Conn, symbol string, id uint64, newQty uint32) error {
	buf, err := net.ModifyOrderMessage{OrderID: id, NewQty: newQty, Symbol: symbol}.Serialize()
	if err != nil {
		return err
	}
	_, err = conn.Write(buf)
	return err
}

// readReports prints every report frame pushed by the server.
func readReports(conn gonet.Conn) {
	buffer := make([]byte, 4096)
	for {
		n, err := conn.Read(buffer)
		if err != nil {
			if err != io.EOF {
				log.Printf("Read error: %v", err)
			}
			fmt.Println("Server closed the connection.")
			os.Exit(0)
		}
		printReports(buffer[:n])
	}
}

// printReports walks a buffer that may hold several back-to-back frames.
func printReports(buf []byte) {
	for len(buf) > 0 {
		switch net.ReportType(buf[0]) {
		case net.TradeReport:
			trade, err := net.ParseTrade(buf)
			if err != nil {
				log.Printf("Bad trade frame: %v", err)
				return
			}
			fmt.Printf("<- TRADE aggressive=%d passive=%d %d @ %s\n",
				trade.AggressiveID, trade.PassiveID, trade.Quantity,
				net.TicksToDecimal(trade.Price))
			buf = buf[net.TradeReportLen:]

		case net.OrderEventReport:
			event, err := net.ParseOrderEvent(buf)
			if err != nil {
				log.Printf("Bad order event frame: %v", err)
				return
			}
			fmt.Printf("<- %s id=%d qty=%d remaining=%d\n",
				event.Kind, event.OrderID, event.Quantity, event.Remaining)
			buf = buf[net.OrderEventReportLen:]

		case net.ErrorReport:
			frame, err := net.ParseErrorFrame(buf)
			if err != nil {
				log.Printf("Bad error frame: %v", err)
				return
			}
			fmt.Printf("<- %s: %s\n", frame.Status, frame.Message)
			buf = buf[net.ErrorReportHdrLen+len(frame.Message):]

		default:
			log.Printf("Unknown report type %d", buf[0])
			return
		}
	}
}
