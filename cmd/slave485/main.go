package main

import (
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/simple485.go/pkg/env"
	fx "github.com/robotalks/simple485.go/pkg/framework"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	e := env.Default().MustNewEnv()
	glog.Infof("slave %s on %s (%s)", e.Slave.Address(), e.Config.Port.Device, e.Config.Device)
	r := fx.NewRunner().HandleSignals()
	if err := r.Go(e.Runnables()...).Wait(); err != nil {
		glog.Flush()
		log.Fatalln(err)
	}
}
