package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rendis/ucdiagram/pkg/schema"
)

func newBenchStore(b *testing.B) (*LibSQLStore, *EventLog) {
	b.Helper()
	dir := b.TempDir()
	s, err := NewLibSQLStore("file:" + dir + "/bench.db")
	if err != nil {
		b.Fatal(err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = s.Close() })
	return s, NewEventLog(s)
}

func seedBenchProject(b *testing.B, s *LibSQLStore) string {
	b.Helper()
	id := uuid.New().String()
	if err := s.CreateProject(context.Background(), &Project{ID: id, Name: "bench"}); err != nil {
		b.Fatal(err)
	}
	return id
}

func seedBenchDiagram(b *testing.B, s *LibSQLStore, projectID string) string {
	b.Helper()
	id := uuid.New().String()
	if err := s.CreateDiagram(context.Background(), &Diagram{
		ID:        id,
		ProjectID: projectID,
		Name:      "bench",
		Source:    `actor "A"`,
		Graph:     schema.Graph{Nodes: []schema.Node{}, Edges: []schema.Edge{}},
	}); err != nil {
		b.Fatal(err)
	}
	return id
}

func BenchmarkEventAppend_Sequential(b *testing.B) {
	s, _ := newBenchStore(b)
	projectID := seedBenchProject(b, s)
	diagramID := seedBenchDiagram(b, s, projectID)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.AppendEvent(ctx, &Event{
			DiagramID: diagramID,
			ProjectID: projectID,
			Type:      schema.EventDiagramEdited,
		})
	}
}

func BenchmarkEventAppend_MultipleDiagrams(b *testing.B) {
	s, _ := newBenchStore(b)
	projectID := seedBenchProject(b, s)
	ctx := context.Background()

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = seedBenchDiagram(b, s, projectID)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.AppendEvent(ctx, &Event{
			DiagramID: ids[i%len(ids)],
			ProjectID: projectID,
			Type:      schema.EventDiagramEdited,
		})
	}
}

func BenchmarkEventAppend_Concurrent(b *testing.B) {
	for _, writers := range []int{10, 50, 100} {
		b.Run(fmt.Sprintf("writers=%d", writers), func(b *testing.B) {
			benchEventAppendConcurrent(b, writers)
		})
	}
}

func benchEventAppendConcurrent(b *testing.B, writers int) {
	s, _ := newBenchStore(b)
	projectID := seedBenchProject(b, s)
	ctx := context.Background()

	ids := make([]string, writers)
	for i := range ids {
		ids[i] = seedBenchDiagram(b, s, projectID)
	}

	b.ResetTimer()
	var wg sync.WaitGroup
	perWriter := b.N / writers
	if perWriter == 0 {
		perWriter = 1
	}

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(diagramID string) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				s.AppendEvent(ctx, &Event{
					DiagramID: diagramID,
					ProjectID: projectID,
					Type:      schema.EventDiagramEdited,
				})
			}
		}(ids[w])
	}
	wg.Wait()
}

func BenchmarkReplaySources(b *testing.B) {
	for _, count := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("events=%d", count), func(b *testing.B) {
			s, el := newBenchStore(b)
			projectID := seedBenchProject(b, s)
			diagramID := seedBenchDiagram(b, s, projectID)
			ctx := context.Background()

			for i := 0; i < count; i++ {
				payload, _ := json.Marshal(SourcePayload{
					Source:   fmt.Sprintf(`usecase "U%d"`, i),
					Revision: int64(i + 1),
				})
				s.AppendEvent(ctx, &Event{
					DiagramID: diagramID,
					ProjectID: projectID,
					Type:      schema.EventDiagramSourceChanged,
					Payload:   payload,
					Revision:  int64(i + 1),
				})
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				el.ReplaySources(ctx, diagramID)
			}
		})
	}
}
