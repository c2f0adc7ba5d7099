package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/simple485.go/pkg/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/simple485/"
	address = "+"
)

func init() {
	if val := os.Getenv("SIMPLE485_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&address, "addr", address, "Slave address to monitor, + for all.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	q.OnConnect = func(*mqtt.Queue) {
		log.Printf("connected")
	}
	q.Sub("slave/"+address+"/#", mqtt.Handler(func(topic string, payload []byte) {
		if strings.Contains(topic, "/ctl/") {
			return
		}
		log.Printf("%s: %s", topic, string(payload))
	}))
	if err := q.ConnectAndWait(mqtt.DefaultConnectTimeout); err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
