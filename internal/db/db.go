package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"coglex/internal/config"
)

// NewClient construye y devuelve un cliente MongoDB configurado.
func NewClient(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.MongoURI)

	// Configuración razonable para ambientes iniciales.
	opts.SetMaxPoolSize(10)
	opts.SetMinPoolSize(1)
	opts.SetMaxConnIdleTime(5 * time.Minute)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetServerSelectionTimeout(5 * time.Second)
	opts.SetTimeout(10 * time.Second)
	// Subdocumentos como mapas para serializarlos a JSON sin conversión.
	opts.SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	return mongo.Connect(ctx, opts)
}

// Database devuelve la base de datos configurada.
func Database(client *mongo.Client, cfg *config.Config) *mongo.Database {
	return client.Database(cfg.MongoDatabase)
}

// Ping verifica conectividad con la base de datos.
func Ping(ctx context.Context, client *mongo.Client) error {
	return client.Ping(ctx, readpref.Primary())
}
