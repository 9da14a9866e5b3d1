package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/mathewtroy/candle/config"
	database "github.com/mathewtroy/candle/db"
	"github.com/mathewtroy/candle/docstore"
	mongostore "github.com/mathewtroy/candle/docstore/mongo"
	pgstore "github.com/mathewtroy/candle/docstore/postgres"
)

func openDatabase(cfg *config.Config) (*database.Connection, error) {
	dbConn, err := database.NewConnection(database.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		DBName:       cfg.Database.DBName,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.MaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("Successfully connected to database")
	return dbConn, nil
}

// openStore opens the document store selected by STORE_BACKEND. live
// enables change notifications for Subscribe.
func openStore(ctx context.Context, cfg *config.Config, dbConn *database.Connection, live bool) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		dsn := ""
		if live {
			dsn = dbConn.Config().DSN()
		}
		store, err := pgstore.New(dbConn.DB, dsn, database.ChangeChannel)
		if err != nil {
			return nil, err
		}
		log.Println("Using postgres document store")
		return store, nil

	case config.BackendMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		log.Printf("Using mongo document store %s", cfg.Mongo.Database)
		if live && !cfg.Mongo.Watch {
			log.Println("MONGO_WATCH is off: live feeds are refused")
		}
		return &mongoStore{
			Store:  mongostore.New(client.Database(cfg.Mongo.Database), live && cfg.Mongo.Watch),
			client: client,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// mongoStore disconnects the client when the store is closed.
type mongoStore struct {
	*mongostore.Store
	client interface {
		Disconnect(context.Context) error
	}
}

func (s *mongoStore) Close() error {
	err := s.Store.Close()
	if derr := s.client.Disconnect(context.Background()); derr != nil && err == nil {
		err = derr
	}
	return err
}
