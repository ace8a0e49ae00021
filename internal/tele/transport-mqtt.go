package tele

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AlexTransit/kiosk/helpers"
	"github.com/AlexTransit/kiosk/log2"
	tele_config "github.com/AlexTransit/kiosk/tele/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
)

type transportMqtt struct {
	enabled   bool
	log       *log2.Log
	onCommand func([]byte) bool
	m         mqtt.Client
	mopt      *mqtt.ClientOptions

	topicPrefix  string
	topicConnect string
	topicEvents  string
	topicErrors  string
	topicReport  string
	topicCommand string
}

func TopicPrefix(teleConfig tele_config.Config) string {
	return helpers.ConfigDefaultStr(teleConfig.TopicPrefix, fmt.Sprintf("kiosk%d", teleConfig.VmId))
}

func (tm *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand CommandCallback) error {
	if !teleConfig.Enabled {
		return nil
	}
	if teleConfig.MqttBroker == "" {
		return errors.NotValidf("tele.mqtt_broker empty")
	}
	tm.enabled = true
	tm.log = log
	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log
	if teleConfig.MqttLogDebug {
		mqtt.DEBUG = log
	}
	mqttClientId := fmt.Sprintf("kiosk%d", teleConfig.VmId)
	credFun := func() (string, string) {
		return mqttClientId, teleConfig.MqttPassword
	}

	tm.onCommand = func(payload []byte) bool {
		return onCommand(ctx, payload)
	}
	tm.topicPrefix = TopicPrefix(teleConfig)
	tm.topicConnect = tm.topicPrefix + "/c"
	tm.topicEvents = tm.topicPrefix + "/events"
	tm.topicErrors = tm.topicPrefix + "/errors"
	tm.topicReport = tm.topicPrefix + "/report"
	tm.topicCommand = tm.topicPrefix + "/command"
	keepAlive := helpers.IntSecondDefault(teleConfig.KeepaliveSec, 60*time.Second)
	pingTimeout := helpers.IntSecondDefault(teleConfig.PingTimeoutSec, 30*time.Second)
	retryInterval := helpers.IntSecondDefault(teleConfig.KeepaliveSec/2, 30*time.Second)
	storePath := helpers.ConfigDefaultStr(teleConfig.StorePath, filepath.Join(os.TempDir(), "kiosk-tele"))
	tm.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetBinaryWill(tm.topicConnect, []byte{0x00}, 1, true).
		SetClientID(mqttClientId).
		SetCredentialsProvider(credFun).
		SetDefaultPublishHandler(tm.messageHandler).
		SetKeepAlive(keepAlive).
		SetPingTimeout(pingTimeout).
		SetOrderMatters(false).
		SetResumeSubs(true).SetCleanSession(false).
		SetStore(mqtt.NewFileStore(storePath)).
		SetConnectRetryInterval(retryInterval).
		SetOnConnectHandler(tm.onConnectHandler).
		SetConnectionLostHandler(tm.connectLostHandler).
		SetConnectRetry(true)
	tm.m = mqtt.NewClient(tm.mopt)
	if token := tm.m.Connect(); token.Error() != nil {
		tm.log.Errorf("mqtt connect err=%v", token.Error())
	}
	return nil
}

func (tm *transportMqtt) CloseTele() {
	if !tm.enabled {
		return
	}
	tm.log.Infof("mqtt unsubscribe")
	if token := tm.m.Unsubscribe(tm.topicCommand); token.WaitTimeout(DefaultNetworkTimeout) && token.Error() != nil {
		tm.log.Infof("mqtt unsubscribe error")
	}
	tm.m.Publish(tm.topicConnect, 1, true, []byte{0x00}).WaitTimeout(DefaultNetworkTimeout)
	tm.m.Disconnect(250)
}

func (tm *transportMqtt) publish(topic string, payload []byte) bool {
	if !tm.enabled {
		return false
	}
	tm.m.Publish(topic, 1, false, payload)
	return true
}

func (tm *transportMqtt) SendEvent(payload []byte) bool  { return tm.publish(tm.topicEvents, payload) }
func (tm *transportMqtt) SendError(payload []byte) bool  { return tm.publish(tm.topicErrors, payload) }
func (tm *transportMqtt) SendReport(payload []byte) bool { return tm.publish(tm.topicReport, payload) }

func (tm *transportMqtt) messageHandler(c mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	tm.log.Debugf("mqtt income message topic=%s (%x)", msg.Topic(), payload)
	if msg.Topic() == tm.topicCommand {
		tm.onCommand(payload)
	}
}

func (tm *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	tm.log.Infof("mqtt disconnect err=%v", err)
}

func (tm *transportMqtt) onConnectHandler(c mqtt.Client) {
	tm.log.Infof("mqtt connect")
	if token := c.Subscribe(tm.topicCommand, 1, nil); token.Wait() && token.Error() != nil {
		tm.log.Infof("mqtt subscribe error")
	} else {
		tm.log.Infof("mqtt subscribe Ok")
		c.Publish(tm.topicConnect, 1, true, []byte{0x01})
	}
}
