package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/toeic4all/question-api/server"
)

func main() {
	var (
		configPath    string
		listenAddr    string
		redisAddr     string
		redisDB       int
		mongoURI      string
		mongoDatabase string
		rateLimitMax  int64
		debug         bool
		verbose       bool
	)
	flag.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flag.StringVarP(&listenAddr, "listen", "l", ":8080", "address to listen on")
	flag.StringVar(&redisAddr, "redis-addr", "localhost:6379", "redis server address")
	flag.IntVar(&redisDB, "redis-db", 0, "redis database number")
	flag.StringVar(&mongoURI, "mongo-uri", "mongodb://localhost:27017/", "mongodb connection uri")
	flag.StringVar(&mongoDatabase, "mongo-database", "toeic4all", "mongodb database name")
	flag.Int64Var(&rateLimitMax, "rate-limit", 100, "max requests per client per window")
	flag.BoolVarP(&debug, "debug", "d", false, "include error detail in API responses")
	flag.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flag.Parse()

	c := server.DefaultConfig()
	if configPath != "" {
		var err error
		c, err = server.LoadConfig(configPath)
		if err != nil {
			log.Fatal(err)
		}
	}

	// Explicit flags win over the config file.
	overrides := map[string]func(){
		"listen":         func() { c.ListenAddr = listenAddr },
		"redis-addr":     func() { c.RedisAddr = redisAddr },
		"redis-db":       func() { c.RedisDB = redisDB },
		"mongo-uri":      func() { c.MongoURI = mongoURI },
		"mongo-database": func() { c.MongoDatabase = mongoDatabase },
		"rate-limit":     func() { c.RateLimitMax = rateLimitMax },
		"debug":          func() { c.Debug = debug },
		"verbose":        func() { c.Verbose = verbose },
	}
	for name, apply := range overrides {
		if flag.CommandLine.Changed(name) {
			apply()
		}
	}

	if c.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	s, err := server.New(c)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close(ctx)
	}()

	if err := s.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
