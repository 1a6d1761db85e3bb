package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kilianp07/warehouse/config"
	"github.com/kilianp07/warehouse/core/model"
	"github.com/kilianp07/warehouse/infra/mqtt"
)

var (
	chargeAGV     string
	chargeBattery int
	chargeUrgent  bool
)

var chargeCmd = &cobra.Command{
	Use:   "charge",
	Short: "Ask a running scheduler to queue an AGV for charging",
	RunE:  requestCharge,
}

func init() {
	chargeCmd.Flags().StringVar(&chargeAGV, "agv", "", "AGV id")
	chargeCmd.Flags().IntVar(&chargeBattery, "battery", 10, "battery level in percent")
	chargeCmd.Flags().BoolVar(&chargeUrgent, "urgent", false, "flag the request as urgent")
	_ = chargeCmd.MarkFlagRequired("agv")
	rootCmd.AddCommand(chargeCmd)
}

func requestCharge(cmd *cobra.Command, args []string) error {
	if _, err := model.NewAGV(chargeAGV, chargeBattery, chargeUrgent); err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	mqttCfg := cfg.MQTT
	if mqttCfg.Broker == "" {
		return fmt.Errorf("mqtt.broker is not configured")
	}
	mqttCfg.ClientID = mqttCfg.ClientID + "-cli-" + uuid.NewString()[:8]
	mqttCfg.Passive = true
	client, err := mqtt.NewPahoClient(mqttCfg)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()

	req := mqtt.ChargeRequest{AGVID: chargeAGV, Battery: chargeBattery, Urgent: chargeUrgent}
	if err := client.RequestCharge(req); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "charge request for %s sent to %s\n", chargeAGV, client.RequestTopic())
	return err
}
