package vector

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Meta 与向量一一对应的元数据。第 i 条元数据对应索引里第 i 个向量，
// 两个序列必须始终等长、顺序一致。
type Meta struct {
	TMDBID     int     `json:"tmdb_id"`
	Title      string  `json:"title"`
	Year       *int    `json:"year"`
	Popularity float64 `json:"popularity"`
}

// Hit 一次最近邻查询的单条命中
type Hit struct {
	Ordinal    int
	Distance   float64
	Similarity float64 // 1/(1+distance)，始终落在 (0,1]
	Meta       Meta
}

// Index 平铺式最近邻索引：向量矩阵 + 平行元数据序列，只追加，无删除。
// 持久化为两个文件：gob 格式的向量文件和 JSON 格式的元数据文件。
// 所有"读索引 → 追加 → 落盘"序列由内部写锁串行化，避免并发请求丢更新。
type Index struct {
	mu        sync.RWMutex
	dim       int
	vectors   [][]float32
	metas     []Meta
	indexPath string
	metaPath  string
}

// indexFile gob 落盘结构
type indexFile struct {
	Dim     int
	Vectors [][]float32
}

// New 创建空索引，dim 是部署期固定的向量维度
func New(dim int, indexPath, metaPath string) *Index {
	return &Index{
		dim:       dim,
		indexPath: indexPath,
		metaPath:  metaPath,
	}
}

// Load 从磁盘加载索引与元数据。
// 两个文件都不存在时按空索引启动（语义检索不可用但不致命）；
// 只存在其中一个、长度不一致或维度不符，都是损坏状态，必须报错而不是静默清空。
func (idx *Index) Load() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, idxErr := os.Stat(idx.indexPath)
	_, metaErr := os.Stat(idx.metaPath)
	idxExists := idxErr == nil
	metaExists := metaErr == nil

	if !idxExists && !metaExists {
		idx.vectors = nil
		idx.metas = nil
		return nil
	}
	if idxExists != metaExists {
		return fmt.Errorf("向量索引状态损坏: 索引文件存在=%v 元数据文件存在=%v", idxExists, metaExists)
	}

	f, err := os.Open(idx.indexPath)
	if err != nil {
		return fmt.Errorf("打开索引文件失败: %w", err)
	}
	defer f.Close()

	var stored indexFile
	if err := gob.NewDecoder(f).Decode(&stored); err != nil {
		return fmt.Errorf("解码索引文件失败: %w", err)
	}
	if stored.Dim != idx.dim {
		return fmt.Errorf("索引维度不匹配: 文件为 %d 维，配置为 %d 维", stored.Dim, idx.dim)
	}

	raw, err := os.ReadFile(idx.metaPath)
	if err != nil {
		return fmt.Errorf("读取元数据文件失败: %w", err)
	}
	var metas []Meta
	if err := json.Unmarshal(raw, &metas); err != nil {
		return fmt.Errorf("解析元数据文件失败: %w", err)
	}

	if len(stored.Vectors) != len(metas) {
		return fmt.Errorf("向量索引状态损坏: 向量数 %d 与元数据数 %d 不一致", len(stored.Vectors), len(metas))
	}

	idx.vectors = stored.Vectors
	idx.metas = metas
	return nil
}

// Len 当前向量条数
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Available 语义检索是否可用（索引非空）
func (idx *Index) Available() bool {
	return idx.Len() > 0
}

// Dim 向量维度
func (idx *Index) Dim() int {
	return idx.dim
}

// Contains 判断某个 TMDB ID 是否已入索引
func (idx *Index) Contains(tmdbID int) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.containsLocked(tmdbID)
}

func (idx *Index) containsLocked(tmdbID int) bool {
	for i := range idx.metas {
		if idx.metas[i].TMDBID == tmdbID {
			return true
		}
	}
	return false
}

// Search 返回至多 k 个最近邻，按距离升序。
// 距离为 L2 平方距离，相似度 = 1/(1+distance)，与向量量纲无关。
func (idx *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("查询向量维度 %d 与索引维度 %d 不一致", len(query), idx.dim)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.vectors) == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(idx.vectors))
	for i, vec := range idx.vectors {
		dist := squaredL2(query, vec)
		hits = append(hits, Hit{
			Ordinal:    i,
			Distance:   dist,
			Similarity: 1 / (1 + dist),
			Meta:       idx.metas[i],
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// AddIfAbsent 原子执行"查重 → 追加 → 落盘"。
// 同一 TMDB ID 不会重复入索引（追加幂等由这里保证，索引本身无删除能力）。
// 返回是否真正追加了新条目。
func (idx *Index) AddIfAbsent(vec []float32, meta Meta) (bool, error) {
	if len(vec) != idx.dim {
		return false, fmt.Errorf("向量维度 %d 与索引维度 %d 不一致", len(vec), idx.dim)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.containsLocked(meta.TMDBID) {
		return false, nil
	}

	idx.vectors = append(idx.vectors, vec)
	idx.metas = append(idx.metas, meta)

	if err := idx.persistLocked(); err != nil {
		// 落盘失败时回滚内存追加，保持内存与磁盘一致
		idx.vectors = idx.vectors[:len(idx.vectors)-1]
		idx.metas = idx.metas[:len(idx.metas)-1]
		return false, err
	}
	return true, nil
}

// ReplaceAll 整体替换索引内容并落盘，用于离线重建
func (idx *Index) ReplaceAll(vectors [][]float32, metas []Meta) error {
	if len(vectors) != len(metas) {
		return fmt.Errorf("向量数 %d 与元数据数 %d 不一致", len(vectors), len(metas))
	}
	for i := range vectors {
		if len(vectors[i]) != idx.dim {
			return fmt.Errorf("第 %d 个向量维度 %d 与索引维度 %d 不一致", i, len(vectors[i]), idx.dim)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	oldVectors, oldMetas := idx.vectors, idx.metas
	idx.vectors = vectors
	idx.metas = metas

	if err := idx.persistLocked(); err != nil {
		idx.vectors, idx.metas = oldVectors, oldMetas
		return err
	}
	return nil
}

// Persist 将当前索引与元数据写入磁盘
func (idx *Index) Persist() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.persistLocked()
}

// persistLocked 先写临时文件再改名，避免写到一半留下损坏文件
func (idx *Index) persistLocked() error {
	if dir := filepath.Dir(idx.indexPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建索引目录失败: %w", err)
		}
	}
	if dir := filepath.Dir(idx.metaPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建元数据目录失败: %w", err)
		}
	}

	tmpIndex := idx.indexPath + ".tmp"
	f, err := os.Create(tmpIndex)
	if err != nil {
		return fmt.Errorf("创建索引临时文件失败: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(indexFile{Dim: idx.dim, Vectors: idx.vectors}); err != nil {
		f.Close()
		return fmt.Errorf("写入索引文件失败: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	metas := idx.metas
	if metas == nil {
		metas = []Meta{}
	}
	raw, err := json.MarshalIndent(metas, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化元数据失败: %w", err)
	}
	tmpMeta := idx.metaPath + ".tmp"
	if err := os.WriteFile(tmpMeta, raw, 0o644); err != nil {
		return fmt.Errorf("写入元数据文件失败: %w", err)
	}

	if err := os.Rename(tmpIndex, idx.indexPath); err != nil {
		return err
	}
	return os.Rename(tmpMeta, idx.metaPath)
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	if math.IsNaN(sum) {
		return math.MaxFloat64
	}
	return sum
}
