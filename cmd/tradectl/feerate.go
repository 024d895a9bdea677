package main

import (
	esplorafee "github.com/tdex-network/tdex-tradeprotocol/internal/infrastructure/fee/esplora"
	"github.com/urfave/cli/v2"
)

var feeRateCmd = cli.Command{
	Name:   "feerate",
	Usage:  "show the current fee rate estimate in sat/vB",
	Action: feeRateAction,
}

func feeRateAction(c *cli.Context) error {
	feeService, err := esplorafee.NewService(
		c.String(esploraUrlFlag.Name), c.Int(confTargetFlag.Name),
	)
	if err != nil {
		return err
	}

	rate, err := feeService.GetFeeRatePerVbyte(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c, map[string]interface{}{"sat_per_vbyte": rate})
}
