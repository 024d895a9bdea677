package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-tradeprotocol/internal/core/domain"
	"github.com/urfave/cli/v2"
)

var disputeCmd = cli.Command{
	Name:      "dispute",
	Usage:     "move a trade to the disputed state for manual resolution",
	ArgsUsage: "<trade_id>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "reason",
			Usage:    "the reason of the dispute",
			Required: true,
		},
	},
	Action: disputeAction,
}

func disputeAction(c *cli.Context) error {
	tradeId := c.Args().First()
	if len(tradeId) <= 0 {
		return fmt.Errorf("missing trade id")
	}
	reason := c.String("reason")

	repoManager, err := openRepoManager(c)
	if err != nil {
		return err
	}
	defer repoManager.Close()

	var disputed domain.Trade
	if err := repoManager.TradeRepository().UpdateTrade(
		c.Context, tradeId, func(t *domain.Trade) (*domain.Trade, error) {
			if !t.RequestDispute(reason) {
				return nil, domain.ErrTradeAlreadyTerminal
			}
			disputed = *t
			return t, nil
		},
	); err != nil {
		return err
	}

	log.Infof("trade %s moved to %s", tradeId, disputed.State)
	return printJSON(c, map[string]interface{}{"trade": newTradeInfo(&disputed)})
}
