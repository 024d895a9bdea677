package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var (
	messagesCmd = cli.Command{
		Name:      "messages",
		Usage:     "show the delivery state of the messages sent for a trade",
		ArgsUsage: "<trade_id>",
		Action:    listMessagesAction,
	}
	statsCmd = cli.Command{
		Name:   "stats",
		Usage:  "list the trade statistics records published",
		Flags:  pageFlags,
		Action: listStatsAction,
	}
)

type messageInfo struct {
	Uid         string `json:"uid"`
	Kind        string `json:"kind"`
	Peer        string `json:"peer"`
	State       string `json:"state"`
	Resendable  bool   `json:"resendable"`
	Attempts    int    `json:"attempts"`
	LastAttempt string `json:"last_attempt,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

func listMessagesAction(c *cli.Context) error {
	tradeId := c.Args().First()
	if len(tradeId) <= 0 {
		return fmt.Errorf("missing trade id")
	}

	repoManager, err := openRepoManager(c)
	if err != nil {
		return err
	}
	defer repoManager.Close()

	model, err := repoManager.ProcessModelRepository().GetProcessModel(c.Context, tradeId)
	if err != nil {
		return err
	}

	records := model.SortedMessageRecords()
	infos := make([]messageInfo, 0, len(records))
	for _, r := range records {
		infos = append(infos, messageInfo{
			Uid:         r.Uid,
			Kind:        string(r.Kind),
			Peer:        r.PeerAddress,
			State:       r.State.String(),
			Resendable:  r.Resendable,
			Attempts:    r.Attempts,
			LastAttempt: formatTime(r.LastAttempt),
			LastError:   r.LastError,
		})
	}
	return printJSON(c, map[string]interface{}{"messages": infos})
}

func listStatsAction(c *cli.Context) error {
	repoManager, err := openRepoManager(c)
	if err != nil {
		return err
	}
	defer repoManager.Close()

	stats, err := repoManager.StatisticsRepository().ListStatistics(c.Context, getPage(c))
	if err != nil {
		return err
	}

	infos := make([]map[string]interface{}, 0, len(stats))
	for _, s := range stats {
		infos = append(infos, map[string]interface{}{
			"hash":           s.Hash(),
			"currency_code":  s.CurrencyCode,
			"price":          s.Price,
			"amount":         s.Amount,
			"payment_method": s.PaymentMethod,
			"protocol":       s.Protocol,
			"date":           formatTime(s.Date),
		})
	}
	return printJSON(c, map[string]interface{}{"statistics": infos})
}
