package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pramari/federation/activitypub"
	"github.com/pramari/federation/db"
	"github.com/pramari/federation/domain"
	"github.com/pramari/federation/util"
	"github.com/pramari/federation/web"
)

func main() {
	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	database := db.GetDB()
	defer database.Close()

	if err := ensureAccount(database, conf); err != nil {
		log.Fatalln(err)
	}

	var blockList *activitypub.BlockList
	if conf.Conf.BlocklistPath != "" {
		blockList, err = activitypub.NewBlockList(conf.Conf.BlocklistPath)
		if err != nil {
			log.Fatalln(err)
		}
		defer blockList.Close()
	}

	resolver := activitypub.NewResolver(database, blockList, conf.Conf.InsecureFetch)

	if len(os.Args) > 1 {
		if err := runCommand(database, conf, resolver, os.Args[1:]); err != nil {
			log.Fatalln(err)
		}
		return
	}

	checker := &activitypub.SignatureChecker{
		DB:       database,
		Resolver: resolver,
		MaxAge:   time.Duration(conf.SignatureMaxAge()) * time.Second,
	}

	stopWorker := activitypub.StartDeliveryWorker(database, conf, resolver)
	defer stopWorker()

	server := &web.Server{
		DB:   database,
		Conf: conf,
		Inbox: &activitypub.InboxHandler{
			DB:       database,
			Conf:     conf,
			Checker:  checker,
			Resolver: resolver,
		},
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			log.Fatalln(err)
		}
	}()

	<-done
	log.Println("Stopping federation server")
}

// ensureAccount creates the configured local account with a fresh
// keypair on first start. Consent to federate stays off until the
// consent command grants it.
func ensureAccount(database *db.DB, conf *util.AppConfig) error {
	slug := conf.Conf.AccountName
	if slug == "" {
		return nil
	}

	err, _ := database.ReadProfileBySlug(slug)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}

	keys := util.GeneratePemKeypair()
	profile := &domain.Profile{
		Id:            uuid.New(),
		Slug:          slug,
		PublicKeyPem:  keys.Public,
		PrivateKeyPem: keys.Private,
		CreatedAt:     time.Now(),
	}
	if err := database.CreateProfile(profile); err != nil {
		return fmt.Errorf("failed to create account %s: %w", slug, err)
	}

	actor, err2 := activitypub.CreateActorForProfile(database, conf, profile)
	if err2 != nil {
		return err2
	}
	log.Printf("Created account %s (%s)", slug, actor.Id)
	return nil
}

// runCommand executes an admin subcommand against the configured
// account instead of serving.
func runCommand(database *db.DB, conf *util.AppConfig, resolver *activitypub.Resolver, args []string) error {
	err, profile := database.ReadProfileBySlug(conf.Conf.AccountName)
	if err != nil {
		return fmt.Errorf("no local account, set accountName in the config first: %w", err)
	}
	err, actor := database.ReadActorByProfileId(profile.Id)
	if err != nil {
		return err
	}

	switch args[0] {
	case "consent":
		if err := database.UpdateProfileConsent(profile.Id, true); err != nil {
			return err
		}
		err, updated := database.ReadProfileById(profile.Id)
		if err != nil {
			return err
		}
		log.Printf("Federation consent for %s: %t", updated.Slug, updated.Consent)
		return nil
	case "follow":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s follow <actor-iri>", util.Name)
		}
		if !profile.Consent {
			return fmt.Errorf("account %s has not consented to federation, run the consent command first", profile.Slug)
		}
		return activitypub.SendFollow(database, conf, actor, resolver, args[1])
	case "post":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s post <text>", util.Name)
		}
		if !profile.Consent {
			return fmt.Errorf("account %s has not consented to federation, run the consent command first", profile.Slug)
		}
		note := &domain.Note{
			Id:           uuid.New(),
			AttributedTo: actor.Id,
			Content:      util.NormalizeInput(args[1]),
			Public:       true,
			Published:    time.Now(),
		}
		if err := database.CreateNote(note); err != nil {
			return err
		}
		log.Printf("Created note %s", note.Id)
		return activitypub.SendCreate(database, conf, actor, note)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}
