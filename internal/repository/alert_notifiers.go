package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"VitalWatch/internal/domain/models"
	domrepo "VitalWatch/internal/domain/repository"
	"VitalWatch/pkg/cache"
	pkgkafka "VitalWatch/pkg/kafka"
)

// batchPublisher is the part of pkg/kafka.Producer the alert publisher needs.
type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaAlertPublisher publishes alerts as JSON, keyed by patient id so each
// patient's alerts stay ordered within a partition.
type KafkaAlertPublisher struct {
	pub   batchPublisher
	topic string
}

func NewKafkaAlertPublisher(pub batchPublisher, topic string) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{pub: pub, topic: topic}
}

func (p *KafkaAlertPublisher) Notify(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(alerts))
	for _, a := range alerts {
		msgs = append(msgs, pkgkafka.Message{
			Key:   []byte(strconv.Itoa(a.SubjectID)),
			Value: a,
			Time:  time.UnixMilli(a.Timestamp),
			Headers: map[string]string{
				"condition": a.Condition,
				"severity":  string(a.Severity),
				"source":    string(a.Source),
			},
		})
	}
	if err := p.pub.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish alerts: %w", err)
	}
	return nil
}

func (p *KafkaAlertPublisher) Close() error { return p.pub.Close() }

// RedisAlertBoard keeps a capped list of recent alerts per patient and
// globally, and announces each alert on a pub/sub channel.
type RedisAlertBoard struct {
	rc      *cache.RedisCache
	maxLen  int
	ttl     time.Duration
	channel string
}

func NewRedisAlertBoard(rc *cache.RedisCache, maxLen int, ttl time.Duration) *RedisAlertBoard {
	if maxLen <= 0 {
		maxLen = 500
	}
	return &RedisAlertBoard{rc: rc, maxLen: maxLen, ttl: ttl, channel: "alerts"}
}

func recentKey() string { return "alerts:recent" }

func patientKey(id int) string { return "alerts:patient:" + strconv.Itoa(id) }

func (b *RedisAlertBoard) Notify(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	byPatient := make(map[int][]interface{})
	all := make([]interface{}, 0, len(alerts))
	for _, a := range alerts {
		byPatient[a.SubjectID] = append(byPatient[a.SubjectID], a)
		all = append(all, a)
	}
	if err := b.rc.PushCapped(ctx, recentKey(), b.maxLen, b.ttl, all...); err != nil {
		return fmt.Errorf("alert board: %w", err)
	}
	for id, vals := range byPatient {
		if err := b.rc.PushCapped(ctx, patientKey(id), b.maxLen, b.ttl, vals...); err != nil {
			return fmt.Errorf("alert board patient %d: %w", id, err)
		}
	}
	for _, a := range alerts {
		if err := b.rc.Publish(ctx, b.channel, a); err != nil {
			return fmt.Errorf("alert board publish: %w", err)
		}
	}
	return nil
}

// Recent returns up to n alerts, newest first. A negative patientID reads the global list.
func (b *RedisAlertBoard) Recent(ctx context.Context, patientID, n int) ([]models.Alert, error) {
	key := recentKey()
	if patientID >= 0 {
		key = patientKey(patientID)
	}
	if n <= 0 {
		n = b.maxLen
	}
	raw, err := b.rc.Range(ctx, key, 0, int64(n-1))
	if err != nil {
		return nil, fmt.Errorf("alert board: %w", err)
	}
	out := make([]models.Alert, 0, len(raw))
	for _, r := range raw {
		var a models.Alert
		if err := json.Unmarshal([]byte(r), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Remove drops every alert of patientID with condition from the global and the
// patient list, mirroring an untrigger on the engine log. It reports how many
// entries left the patient list.
func (b *RedisAlertBoard) Remove(ctx context.Context, patientID int, condition string) (int, error) {
	match := func(raw string) bool {
		var a models.Alert
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return false
		}
		return a.Matches(patientID, condition)
	}
	if _, err := b.rc.RemoveMatching(ctx, recentKey(), match); err != nil {
		return 0, fmt.Errorf("alert board: %w", err)
	}
	n, err := b.rc.RemoveMatching(ctx, patientKey(patientID), match)
	if err != nil {
		return 0, fmt.Errorf("alert board patient %d: %w", patientID, err)
	}
	return n, nil
}

// Clear removes every alert list. Used when the engine log is reset.
func (b *RedisAlertBoard) Clear(ctx context.Context) error {
	_, err := b.rc.DeleteByPattern(ctx, "alerts:*")
	return err
}

func (b *RedisAlertBoard) Close() error { return nil }

// MultiNotifier fans alerts out to several notifiers. Every notifier is
// attempted; failures are joined.
type MultiNotifier []domrepo.AlertNotifier

func (m MultiNotifier) Notify(ctx context.Context, alerts []models.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alerts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiNotifier) Close() error {
	var errs []error
	for _, n := range m {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ domrepo.AlertNotifier = (*KafkaAlertPublisher)(nil)
	_ domrepo.AlertNotifier = (*RedisAlertBoard)(nil)
	_ domrepo.AlertNotifier = MultiNotifier(nil)
)
