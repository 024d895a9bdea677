package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/urfave/cli/v2"
)

var (
	pageFlags = []cli.Flag{
		&cli.IntFlag{
			Name:  "page",
			Usage: "the number of the page to show, all trades are listed if omitted",
		},
		&cli.IntFlag{
			Name:  "page_size",
			Usage: "the number of trades per page",
		},
	}

	tradesCmd = cli.Command{
		Name:  "trades",
		Usage: "list the trades, optionally filtered by collection",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "collection",
				Usage: "one of open, closed, failed, disputed",
			},
		}, pageFlags...),
		Action: listTradesAction,
	}
	failedCmd = cli.Command{
		Name:   "failed",
		Usage:  "list the failed trades",
		Flags:  pageFlags,
		Action: listFailedTradesAction,
	}
	tradeCmd = cli.Command{
		Name:      "trade",
		Usage:     "show the details of a trade",
		ArgsUsage: "<trade_id>",
		Action:    tradeInfoAction,
	}
)

type tradeInfo struct {
	Id            string `json:"id"`
	Protocol      string `json:"protocol"`
	Direction     string `json:"direction"`
	Role          string `json:"role"`
	Amount        uint64 `json:"amount"`
	Price         string `json:"price"`
	PaymentMethod string `json:"payment_method,omitempty"`
	CurrencyCode  string `json:"currency_code"`
	State         string `json:"state"`
	Collection    string `json:"collection"`
	Peer          string `json:"peer"`
	DepositTxId   string `json:"deposit_txid,omitempty"`
	PayoutTxId    string `json:"payout_txid,omitempty"`
	SwapTxId      string `json:"swap_txid,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	DisputeReason string `json:"dispute_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func newTradeInfo(t *domain.Trade) tradeInfo {
	role := "taker"
	if t.IsMaker {
		role = "maker"
	}
	info := tradeInfo{
		Id:            t.Id,
		Protocol:      t.Protocol.String(),
		Direction:     t.Direction.String(),
		Role:          role,
		Amount:        t.Amount,
		Price:         t.Price.String(),
		PaymentMethod: t.PaymentMethod,
		CurrencyCode:  t.CurrencyCode,
		State:         t.State.String(),
		Collection:    t.Collection.String(),
		Peer:          t.PeerNodeAddress,
		DepositTxId:   t.DepositTxId,
		PayoutTxId:    t.PayoutTxId,
		ErrorMessage:  t.ErrorMessage,
		DisputeReason: t.DisputeReason,
		CreatedAt:     formatTime(t.CreatedAt),
		UpdatedAt:     formatTime(t.UpdatedAt),
	}
	if t.BsqSwap != nil {
		info.SwapTxId = t.BsqSwap.TxId
	}
	return info
}

func formatTime(unix int64) string {
	if unix <= 0 {
		return ""
	}
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

func parseCollection(name string) (domain.Collection, error) {
	for _, c := range []domain.Collection{
		domain.CollectionOpen, domain.CollectionClosed, domain.CollectionFailed,
		domain.CollectionDisputed,
	} {
		if c.String() == strings.ToUpper(name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown collection %s", name)
}

func getPage(c *cli.Context) *domain.Page {
	if !c.IsSet("page") {
		return nil
	}
	page := domain.NewPage(c.Int("page"), c.Int("page_size"))
	return &page
}

func listTradesAction(c *cli.Context) error {
	collection := c.String("collection")
	if len(collection) <= 0 {
		return listTrades(c, nil)
	}
	coll, err := parseCollection(collection)
	if err != nil {
		return err
	}
	return listTrades(c, &coll)
}

func listFailedTradesAction(c *cli.Context) error {
	coll := domain.CollectionFailed
	return listTrades(c, &coll)
}

func listTrades(c *cli.Context, collection *domain.Collection) error {
	repoManager, err := openRepoManager(c)
	if err != nil {
		return err
	}
	defer repoManager.Close()

	var trades []*domain.Trade
	if collection == nil {
		trades, err = repoManager.TradeRepository().GetAllTrades(c.Context, getPage(c))
	} else {
		trades, err = repoManager.TradeRepository().GetTradesByCollection(
			c.Context, *collection, getPage(c),
		)
	}
	if err != nil {
		return err
	}

	infos := make([]tradeInfo, 0, len(trades))
	for _, t := range trades {
		infos = append(infos, newTradeInfo(t))
	}
	return printJSON(c, map[string]interface{}{"trades": infos})
}

func tradeInfoAction(c *cli.Context) error {
	tradeId := c.Args().First()
	if len(tradeId) <= 0 {
		return fmt.Errorf("missing trade id")
	}

	repoManager, err := openRepoManager(c)
	if err != nil {
		return err
	}
	defer repoManager.Close()

	trade, err := repoManager.TradeRepository().GetTrade(c.Context, tradeId)
	if err != nil {
		return err
	}
	resp := map[string]interface{}{"trade": newTradeInfo(trade)}

	model, err := repoManager.ProcessModelRepository().GetProcessModel(c.Context, tradeId)
	if err != nil && !errors.Is(err, domain.ErrProcessModelNotFound) {
		return err
	}
	if model != nil && model.Cursor != nil {
		resp["pending_sequence"] = model.Cursor.Sequence
		resp["pending_task"] = model.Cursor.Next
	}
	return printJSON(c, resp)
}
