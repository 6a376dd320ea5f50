// Command magproducer reads the magnetometer over a periph.io I²C bus and
// publishes JSON samples over MQTT.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/merulogic/ak09916"
	"github.com/merulogic/ak09916/periphio"
)

// payload is the JSON schema we publish. Axis values are in nT (integer,
// exact); overflow samples are published with the flag set so consumers can
// decide what to do with them.
type payload struct {
	X        int32  `json:"x_nt"`
	Y        int32  `json:"y_nt"`
	Z        int32  `json:"z_nt"`
	Overflow bool   `json:"overflow"`
	Overrun  bool   `json:"overrun"`
	Time     string `json:"time"`
}

func main() {
	busName := flag.String("bus", "1", "I2C bus name or number")
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	topic := flag.String("topic", "sensors/mag", "MQTT topic")
	clientID := flag.String("client-id", "ak09916-producer", "MQTT client ID")
	rate := flag.Int("rate", 10, "continuous measurement rate in Hz (10, 20, 50, 100)")
	poll := flag.Duration("poll", 10*time.Millisecond, "data-ready poll interval")
	selfTest := flag.Bool("self-test", false, "run a self-test before producing")
	flag.Parse()

	var mode ak09916.Mode
	switch *rate {
	case 10:
		mode = ak09916.ModeContinuous10Hz
	case 20:
		mode = ak09916.ModeContinuous20Hz
	case 50:
		mode = ak09916.ModeContinuous50Hz
	case 100:
		mode = ak09916.ModeContinuous100Hz
	default:
		log.Fatalf("unsupported rate %d Hz", *rate)
	}

	if _, err := host.Init(); err != nil {
		log.Fatalln("periph host init:", err)
	}
	bus, err := i2creg.Open(*busName)
	if err != nil {
		log.Fatalf("open I2C bus %s: %v", *busName, err)
	}
	defer bus.Close()

	dev := ak09916.New(periphio.Wrap(bus), ak09916.Config{
		Trace: func(event string, kv ...any) {
			log.Println("ak09916:", event, kv)
		},
	})

	wia, err := dev.WhoIAm()
	if err != nil {
		log.Fatalln("who-i-am:", err)
	}
	if wia != ak09916.WhoIAmAK09916 {
		log.Printf("unexpected identity %#x/%#x, continuing", wia.CompanyID, wia.DeviceID)
	}

	if *selfTest {
		res, err := dev.SelfTest()
		if err != nil {
			log.Fatalln("self-test:", err)
		}
		if !res.Valid {
			log.Fatalf("self-test failed: %+v", res.Measurement)
		}
		log.Println("self-test passed")
	}

	if err := dev.SwitchMode(mode); err != nil {
		log.Fatalln("switch mode:", err)
	}

	opts := mqtt.NewClientOptions().AddBroker(*broker).SetClientID(*clientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln("mqtt connect:", token.Error())
	}
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Printf("producing %d Hz samples to %s", *rate, *topic)
	for {
		m, err := dev.PollMeasurementContext(ctx, *poll)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("stopping:", ctx.Err())
				return
			}
			log.Println("read error:", err)
			continue
		}
		b, _ := json.Marshal(payload{
			X:        m.XNanoteslas(),
			Y:        m.YNanoteslas(),
			Z:        m.ZNanoteslas(),
			Overflow: m.Overflow,
			Overrun:  m.Overrun,
			Time:     time.Now().UTC().Format(time.RFC3339Nano),
		})
		client.Publish(*topic, 0, false, b).Wait()
	}
}
